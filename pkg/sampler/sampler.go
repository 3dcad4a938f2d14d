// Package sampler generates batches of program samples from a trained model,
// terminating each in-flight sample via its configured criteria.
package sampler

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"time"

	"clgen/pkg/atomizer"
	"clgen/pkg/config"
)

var DebugLog func(string, ...interface{})

// State carries a predictor's recurrent activations between steps. It is
// opaque to the sampler and exclusively owned by one sample row, so no
// locking is needed.
type State interface{}

// Predictor steps a language model one token at a time.
type Predictor interface {
	NewState() State
	Step(st State, token int) (State, []float64)
}

// Sample is one completed generation, immutable once produced.
type Sample struct {
	Text                  string
	SampleTimeMs          int64
	SampleStartEpochMsUTC int64
	TerminatedBy          string
	Err                   error
}

// RunResult aggregates one batch run. Per-sample errors are reported here as
// a summary, never raised individually.
type RunResult struct {
	Samples         []Sample
	EarlyTerminated int
	CriterionFires  map[string]int
	Duration        time.Duration
}

type Sampler struct {
	cfg     *config.Sampler
	atom    atomizer.Atomizer
	seedIDs []int
	seedTok []string
	rng     *rand.Rand
	id      string
}

// New prepares a sampler against the model's atomizer. The seed text must be
// expressible in the corpus vocabulary.
func New(cfg *config.Sampler, atom atomizer.Atomizer) (*Sampler, error) {
	seedIDs, err := atom.AtomizeString(cfg.StartText)
	if err != nil {
		return nil, fmt.Errorf("start text cannot be encoded: %w", err)
	}
	if len(seedIDs) == 0 {
		return nil, fmt.Errorf("start text produced no tokens")
	}

	return &Sampler{
		cfg:     cfg,
		atom:    atom,
		seedIDs: seedIDs,
		seedTok: atom.TokenizeString(cfg.StartText),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		id:      samplerID(cfg),
	}, nil
}

// ID is the content identity of the sampler configuration.
func (s *Sampler) ID() string { return s.id }

func samplerID(cfg *config.Sampler) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%d|%d|%d", cfg.StartText, cfg.BatchSize, cfg.SequenceLength, cfg.TemperatureMicros)
	for _, c := range cfg.TerminationCriteria {
		if c.MaxTokenLength != nil {
			fmt.Fprintf(h, "|maxlen:%d", c.MaxTokenLength.MaximumTokensInSample)
		}
		if c.SymmetricalTokenDepth != nil {
			fmt.Fprintf(h, "|symtok:%s:%s", c.SymmetricalTokenDepth.DepthIncreaseToken,
				c.SymmetricalTokenDepth.DepthDecreaseToken)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// row is one in-flight sample. Its state, criteria and generated tokens are
// owned exclusively by this row.
type row struct {
	state     State
	lastToken int
	generated []int
	criteria  []Criterion
	start     time.Time
	startUTC  int64
}

// RunBatch generates one batch of samples. Each of the batch's rows advances
// one token per iteration; rows whose criteria fire leave the active set
// while the others continue, and the batch ends when no rows remain.
func (s *Sampler) RunBatch(ctx context.Context, pred Predictor) (*RunResult, error) {
	runStart := time.Now()
	result := &RunResult{CriterionFires: make(map[string]int)}

	active := make([]*row, s.cfg.BatchSize)
	for i := range active {
		r, err := s.newRow(pred)
		if err != nil {
			return nil, err
		}
		active[i] = r
	}

	for len(active) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		remaining := active[:0]
		for _, r := range active {
			sample, done := s.advance(pred, r)
			if done {
				result.Samples = append(result.Samples, sample)
				result.CriterionFires[sample.TerminatedBy]++
				if sample.Err != nil {
					result.EarlyTerminated++
				}
				continue
			}
			remaining = append(remaining, r)
		}
		active = remaining
	}

	result.Duration = time.Since(runStart)
	if DebugLog != nil {
		DebugLog("batch of %d samples complete in %v (%d terminated early)",
			len(result.Samples), result.Duration, result.EarlyTerminated)
	}
	return result, nil
}

// newRow seeds a fresh sample: criteria counters are initialized from the
// seed tokens and the seed is fed through the model.
func (s *Sampler) newRow(pred Predictor) (*row, error) {
	r := &row{
		state:    pred.NewState(),
		criteria: newCriteria(s.cfg.TerminationCriteria),
		start:    time.Now(),
		startUTC: time.Now().UTC().UnixMilli(),
	}
	for _, c := range r.criteria {
		c.Initialize(s.seedTok)
	}

	// The final seed token is left to the first advance step, which feeds
	// lastToken and consumes the resulting logits.
	for _, id := range s.seedIDs[:len(s.seedIDs)-1] {
		r.state, _ = pred.Step(r.state, id)
	}
	r.lastToken = s.seedIDs[len(s.seedIDs)-1]
	return r, nil
}

// advance generates one token for the row and evaluates the criteria in
// declared order. The first criterion to fire terminates the sample and is
// reported as the terminating one.
func (s *Sampler) advance(pred Predictor, r *row) (Sample, bool) {
	var logits []float64
	r.state, logits = pred.Step(r.state, r.lastToken)

	next := s.pickToken(logits)
	r.generated = append(r.generated, next)
	r.lastToken = next

	token := s.atom.Vocab()[next]
	for _, c := range r.criteria {
		if !c.Consume(token) {
			continue
		}
		return Sample{
			Text:                  s.cfg.StartText + s.atom.DeatomizeIndices(r.generated),
			SampleTimeMs:          time.Since(r.start).Milliseconds(),
			SampleStartEpochMsUTC: r.startUTC,
			TerminatedBy:          c.Name(),
			Err:                   c.Err(),
		}, true
	}
	return Sample{}, false
}

// pickToken samples the next token from the logits. A zero temperature means
// greedy argmax; otherwise inverse transform sampling over the softmax of
// temperature-scaled logits.
func (s *Sampler) pickToken(logits []float64) int {
	temperature := s.cfg.Temperature()
	if temperature == 0 {
		best := 0
		for i, l := range logits {
			if l > logits[best] {
				best = i
			}
		}
		return best
	}

	maxLogit := math.Inf(-1)
	for _, l := range logits {
		if l/temperature > maxLogit {
			maxLogit = l / temperature
		}
	}

	probs := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		probs[i] = math.Exp(l/temperature - maxLogit)
		sum += probs[i]
	}

	u := s.rng.Float64() * sum
	cumulative := 0.0
	for i, p := range probs {
		cumulative += p
		if u < cumulative {
			return i
		}
	}
	return len(probs) - 1
}
