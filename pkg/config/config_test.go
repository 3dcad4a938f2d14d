package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validCorpus() *Corpus {
	c := &Corpus{
		Language:               "opencl",
		Path:                   "/tmp/corpus",
		AsciiCharacterAtomizer: true,
	}
	c.setDefaults()
	return c
}

func validSampler() *Sampler {
	s := &Sampler{
		StartText: "kernel void ",
		TerminationCriteria: []TerminationCriterion{
			{MaxTokenLength: &MaxTokenLength{MaximumTokensInSample: 500}},
		},
	}
	s.setDefaults()
	return s
}

func TestCorpusValidateSourceOneof(t *testing.T) {
	c := validCorpus()
	c.ID = "abc"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when both id and path are set")
	}

	c = validCorpus()
	c.Path = ""
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when neither id nor path is set")
	}
}

func TestCorpusValidateAtomizerOneof(t *testing.T) {
	c := validCorpus()
	c.GreedyMulticharAtomizer = &GreedyMulticharAtomizer{Tokens: []string{"int"}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when both atomizers are set")
	}

	c = validCorpus()
	c.AsciiCharacterAtomizer = false
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when no atomizer is set")
	}

	c = validCorpus()
	c.AsciiCharacterAtomizer = false
	c.GreedyMulticharAtomizer = &GreedyMulticharAtomizer{}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for greedy atomizer with no tokens")
	}
}

func TestCorpusDefaults(t *testing.T) {
	c := &Corpus{Path: "/tmp/corpus", AsciiCharacterAtomizer: true}
	c.setDefaults()

	if c.SequenceLength != 50 {
		t.Errorf("sequence_length default: got %d, want 50", c.SequenceLength)
	}
	if c.ContentfileSeparator != "\n\n" {
		t.Errorf("contentfile_separator default: got %q, want %q", c.ContentfileSeparator, "\n\n")
	}
}

func TestArchitectureDefaults(t *testing.T) {
	var a NetworkArchitecture
	a.setDefaults()

	if a.NeuronType != NeuronTypeLSTM {
		t.Errorf("neuron_type default: got %q, want %q", a.NeuronType, NeuronTypeLSTM)
	}
	if a.NeuronsPerLayer != 512 {
		t.Errorf("neurons_per_layer default: got %d, want 512", a.NeuronsPerLayer)
	}
	if a.NumLayers != 2 {
		t.Errorf("num_layers default: got %d, want 2", a.NumLayers)
	}
}

func TestTrainingDefaults(t *testing.T) {
	var tr TrainingOptions
	tr.setDefaults()

	if tr.NumEpochs != 50 {
		t.Errorf("num_epochs default: got %d, want 50", tr.NumEpochs)
	}
	if tr.BatchSize != 128 {
		t.Errorf("batch_size default: got %d, want 128", tr.BatchSize)
	}
	if tr.InitialLearningRate != 0.001 {
		t.Errorf("initial_learning_rate default: got %v, want 0.001", tr.InitialLearningRate)
	}
}

func TestArchitectureValidateNeuronType(t *testing.T) {
	a := NetworkArchitecture{NeuronType: "perceptron", NeuronsPerLayer: 8, NumLayers: 1}
	err := a.Validate()
	if err == nil {
		t.Fatal("expected error for unknown neuron type")
	}
	if !strings.Contains(err.Error(), "neuron_type") {
		t.Errorf("error should name the field, got %v", err)
	}
}

func TestSamplerValidateEmptyCriteria(t *testing.T) {
	s := validSampler()
	s.TerminationCriteria = nil
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for empty termination criteria")
	}
}

func TestSamplerValidateNegativeTemperature(t *testing.T) {
	s := validSampler()
	s.TemperatureMicros = -1
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for negative temperature")
	}
}

func TestSamplerZeroTemperatureIsValid(t *testing.T) {
	s := validSampler()
	s.TemperatureMicros = 0
	if err := s.Validate(); err != nil {
		t.Fatalf("zero temperature should be valid (greedy mode): %v", err)
	}
	if got := s.Temperature(); got != 0 {
		t.Errorf("Temperature(): got %v, want 0", got)
	}
}

func TestTemperatureConversion(t *testing.T) {
	s := &Sampler{TemperatureMicros: 1500000}
	if got := s.Temperature(); got != 1.5 {
		t.Errorf("Temperature(): got %v, want 1.5", got)
	}
}

func TestCriterionValidateOneof(t *testing.T) {
	c := TerminationCriterion{}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for empty criterion")
	}

	c = TerminationCriterion{
		MaxTokenLength:        &MaxTokenLength{MaximumTokensInSample: 10},
		SymmetricalTokenDepth: &SymmetricalTokenDepth{DepthIncreaseToken: "{", DepthDecreaseToken: "}"},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when both criterion members are set")
	}
}

func TestCriterionValidateEqualDepthTokens(t *testing.T) {
	c := TerminationCriterion{
		SymmetricalTokenDepth: &SymmetricalTokenDepth{DepthIncreaseToken: "{", DepthDecreaseToken: "{"},
	}
	err := c.Validate()
	if err == nil {
		t.Fatal("expected error for equal depth tokens")
	}
	if !strings.Contains(err.Error(), "differ") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestCriterionValidateNonPositiveMaxlen(t *testing.T) {
	c := TerminationCriterion{MaxTokenLength: &MaxTokenLength{}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for maxlen of zero")
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const instanceYAML = `
working_dir: /tmp/clgen
model:
  corpus:
    language: opencl
    path: /tmp/corpus
    ascii_character_atomizer: true
    preprocessors:
      - normalize_whitespace
  architecture:
    neuron_type: lstm
  training:
    num_epochs: 2
sampler:
  start_text: "kernel void "
  termination_criteria:
    - maxlen:
        maximum_tokens_in_sample: 100
    - symtok:
        depth_increase_token: "{"
        depth_decrease_token: "}"
`

func TestLoadInstance(t *testing.T) {
	path := writeConfig(t, instanceYAML)

	inst, err := LoadInstance(path)
	if err != nil {
		t.Fatalf("LoadInstance: %v", err)
	}

	if inst.Model.Corpus.SequenceLength != 50 {
		t.Errorf("corpus sequence_length: got %d, want default 50", inst.Model.Corpus.SequenceLength)
	}
	if inst.Model.Architecture.NeuronsPerLayer != 512 {
		t.Errorf("neurons_per_layer: got %d, want default 512", inst.Model.Architecture.NeuronsPerLayer)
	}
	if inst.Model.Training.NumEpochs != 2 {
		t.Errorf("num_epochs: got %d, want 2", inst.Model.Training.NumEpochs)
	}
	if inst.Sampler.BatchSize != 1 {
		t.Errorf("sampler batch_size: got %d, want default 1", inst.Sampler.BatchSize)
	}
	if len(inst.Sampler.TerminationCriteria) != 2 {
		t.Fatalf("criteria: got %d, want 2", len(inst.Sampler.TerminationCriteria))
	}
	if inst.Sampler.TerminationCriteria[0].MaxTokenLength == nil {
		t.Error("first criterion should be maxlen, preserving declared order")
	}
	if inst.Sampler.TerminationCriteria[1].SymmetricalTokenDepth == nil {
		t.Error("second criterion should be symtok, preserving declared order")
	}
}

func TestLoadInstanceIsIdempotent(t *testing.T) {
	path := writeConfig(t, instanceYAML)

	first, err := LoadInstance(path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := LoadInstance(path)
	if err != nil {
		t.Fatal(err)
	}

	if first.Model.Corpus.SequenceLength != second.Model.Corpus.SequenceLength {
		t.Error("repeated loads should produce identical configs")
	}
	if first.Sampler.BatchSize != second.Sampler.BatchSize {
		t.Error("repeated loads should produce identical configs")
	}
}

func TestLoadInstanceMissingFile(t *testing.T) {
	if _, err := LoadInstance(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInstanceRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
model:
  corpus:
    language: opencl
    path: /tmp/corpus
    id: some-id
    ascii_character_atomizer: true
sampler:
  start_text: "x"
  termination_criteria:
    - maxlen:
        maximum_tokens_in_sample: 10
`)
	if _, err := LoadInstance(path); err == nil {
		t.Fatal("expected error when corpus sets both id and path")
	}
}
