package sampler

import (
	"context"
	"testing"

	"clgen/pkg/atomizer"
	"clgen/pkg/config"
)

// scriptPredictor emits a fixed token sequence: the n-th step of any row
// returns logits whose argmax is script[n]. State is the per-row step count.
type scriptPredictor struct {
	vocabSize int
	script    []int
}

func (p *scriptPredictor) NewState() State { return 0 }

func (p *scriptPredictor) Step(st State, token int) (State, []float64) {
	pos := st.(int)
	idx := pos
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	logits := make([]float64, p.vocabSize)
	logits[p.script[idx]] = 10
	return pos + 1, logits
}

// scriptFor builds a predictor whose generated tokens, in order, are the
// given strings. Steps that consume seed tokens emit a dummy target.
func scriptFor(t *testing.T, atom atomizer.Atomizer, startText string, generated ...string) *scriptPredictor {
	t.Helper()
	seed, err := atom.AtomizeString(startText)
	if err != nil {
		t.Fatal(err)
	}

	script := make([]int, len(seed)-1)
	for _, tok := range generated {
		ids, err := atom.AtomizeString(tok)
		if err != nil {
			t.Fatalf("token %q not in vocabulary: %v", tok, err)
		}
		script = append(script, ids...)
	}
	return &scriptPredictor{vocabSize: len(atom.Vocab()), script: script}
}

func samplerFor(t *testing.T, atom atomizer.Atomizer, cfg *config.Sampler) *Sampler {
	t.Helper()
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1
	}
	s, err := New(cfg, atom)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewRejectsUnknownStartText(t *testing.T) {
	atom := atomizer.DeriveCharAtomizer("abc")
	_, err := New(&config.Sampler{
		StartText:           "xyz",
		BatchSize:           1,
		TerminationCriteria: []config.TerminationCriterion{maxlenConfig(5)},
	}, atom)
	if err == nil {
		t.Fatal("expected error for start text outside the vocabulary")
	}
}

func TestNewRejectsEmptyStartText(t *testing.T) {
	atom := atomizer.DeriveCharAtomizer("abc")
	_, err := New(&config.Sampler{
		StartText:           "",
		BatchSize:           1,
		TerminationCriteria: []config.TerminationCriterion{maxlenConfig(5)},
	}, atom)
	if err == nil {
		t.Fatal("expected error for empty start text")
	}
}

func TestRunBatchMaxLength(t *testing.T) {
	atom := atomizer.DeriveCharAtomizer("ab")
	smp := samplerFor(t, atom, &config.Sampler{
		StartText:           "a",
		BatchSize:           2,
		SequenceLength:      50,
		TerminationCriteria: []config.TerminationCriterion{maxlenConfig(3)},
	})
	pred := scriptFor(t, atom, "a", "b", "b", "b", "b")

	result, err := smp.RunBatch(context.Background(), pred)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if len(result.Samples) != 2 {
		t.Fatalf("samples: got %d, want 2", len(result.Samples))
	}
	for _, s := range result.Samples {
		if s.Text != "abb" {
			t.Errorf("text: got %q, want %q", s.Text, "abb")
		}
		if s.TerminatedBy != "maxlen" {
			t.Errorf("terminated by: got %q, want %q", s.TerminatedBy, "maxlen")
		}
		if s.Err != nil {
			t.Errorf("maxlen termination should not be an error: %v", s.Err)
		}
	}
	if result.EarlyTerminated != 0 {
		t.Errorf("early terminated: got %d, want 0", result.EarlyTerminated)
	}
	if result.CriterionFires["maxlen"] != 2 {
		t.Errorf("maxlen fires: got %d, want 2", result.CriterionFires["maxlen"])
	}
}

func TestRunBatchSymmetricalDepth(t *testing.T) {
	atom := atomizer.DeriveCharAtomizer("kernel void f(){}x")
	smp := samplerFor(t, atom, &config.Sampler{
		StartText:      "kernel void ",
		BatchSize:      1,
		SequenceLength: 50,
		TerminationCriteria: []config.TerminationCriterion{
			symtokConfig("{", "}"),
			maxlenConfig(1000),
		},
	})
	// Generation is f ( ) { } and must stop exactly on the closing brace.
	pred := scriptFor(t, atom, "kernel void ", "f", "(", ")", "{", "}", "x", "x")

	result, err := smp.RunBatch(context.Background(), pred)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if len(result.Samples) != 1 {
		t.Fatalf("samples: got %d, want 1", len(result.Samples))
	}
	s := result.Samples[0]
	if s.Text != "kernel void f(){}" {
		t.Errorf("text: got %q, want %q", s.Text, "kernel void f(){}")
	}
	if s.TerminatedBy != "symtok" {
		t.Errorf("terminated by: got %q, want %q", s.TerminatedBy, "symtok")
	}
	if result.EarlyTerminated != 0 {
		t.Errorf("early terminated: got %d, want 0", result.EarlyTerminated)
	}
}

func TestRunBatchUnderflowTerminatesEarly(t *testing.T) {
	atom := atomizer.DeriveCharAtomizer("a{}")
	smp := samplerFor(t, atom, &config.Sampler{
		StartText:      "a",
		BatchSize:      1,
		SequenceLength: 50,
		TerminationCriteria: []config.TerminationCriterion{
			symtokConfig("{", "}"),
		},
	})
	pred := scriptFor(t, atom, "a", "}")

	result, err := smp.RunBatch(context.Background(), pred)
	if err != nil {
		t.Fatalf("a sample-level error must not fail the batch: %v", err)
	}

	if len(result.Samples) != 1 {
		t.Fatalf("samples: got %d, want 1", len(result.Samples))
	}
	if result.Samples[0].Err == nil {
		t.Fatal("underflow sample must carry an error")
	}
	if result.EarlyTerminated != 1 {
		t.Errorf("early terminated: got %d, want 1", result.EarlyTerminated)
	}
}

func TestRunBatchFirstCriterionInOrderWins(t *testing.T) {
	// Both criteria fire on the same token; the declared order decides which
	// one is reported.
	atom := atomizer.DeriveCharAtomizer("a{}x")
	criteria := []config.TerminationCriterion{
		maxlenConfig(4),
		symtokConfig("{", "}"),
	}

	run := func(order []config.TerminationCriterion) string {
		smp := samplerFor(t, atom, &config.Sampler{
			StartText:           "a{",
			BatchSize:           1,
			SequenceLength:      50,
			TerminationCriteria: order,
		})
		pred := scriptFor(t, atom, "a{", "x", "}")
		result, err := smp.RunBatch(context.Background(), pred)
		if err != nil {
			t.Fatal(err)
		}
		if len(result.Samples) != 1 {
			t.Fatalf("samples: got %d, want 1", len(result.Samples))
		}
		return result.Samples[0].TerminatedBy
	}

	if got := run(criteria); got != "maxlen" {
		t.Errorf("maxlen declared first: got %q, want %q", got, "maxlen")
	}
	if got := run([]config.TerminationCriterion{criteria[1], criteria[0]}); got != "symtok" {
		t.Errorf("symtok declared first: got %q, want %q", got, "symtok")
	}
}

func TestPickTokenGreedy(t *testing.T) {
	smp := &Sampler{cfg: &config.Sampler{TemperatureMicros: 0}}

	if got := smp.pickToken([]float64{0.1, 2.5, 0.3}); got != 1 {
		t.Errorf("argmax: got %d, want 1", got)
	}
	if got := smp.pickToken([]float64{5, 2, 3}); got != 0 {
		t.Errorf("argmax: got %d, want 0", got)
	}
}

func TestSamplerIDIsStable(t *testing.T) {
	cfg := &config.Sampler{
		StartText:           "a",
		BatchSize:           1,
		SequenceLength:      50,
		TerminationCriteria: []config.TerminationCriterion{maxlenConfig(5)},
	}
	atom := atomizer.DeriveCharAtomizer("ab")

	first := samplerFor(t, atom, cfg)
	second := samplerFor(t, atom, cfg)
	if first.ID() != second.ID() {
		t.Error("identical configs must produce identical sampler ids")
	}

	changed := *cfg
	changed.StartText = "b"
	third := samplerFor(t, atom, &changed)
	if third.ID() == first.ID() {
		t.Error("different start text must change the sampler id")
	}
}
