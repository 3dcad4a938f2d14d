package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var DebugLog func(string, ...interface{})

// ConfigurationError reports a malformed or contradictory configuration file.
// It is always fatal and raised before any corpus, training or sampling work
// begins.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func errf(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

const (
	NeuronTypeLSTM = "lstm"
	NeuronTypeRNN  = "rnn"
	NeuronTypeGRU  = "gru"
)

// Instance is the complete configuration for one training+sampling run. It is
// loaded once at process start and treated as read-only for the duration of
// the run.
type Instance struct {
	WorkingDir    string        `yaml:"working_dir"`
	Model         *Model        `yaml:"model"`
	Sampler       *Sampler      `yaml:"sampler"`
	Database      Database      `yaml:"database"`
	Elasticsearch Elasticsearch `yaml:"elasticsearch"`
}

type Model struct {
	Corpus       *Corpus             `yaml:"corpus"`
	Architecture NetworkArchitecture `yaml:"architecture"`
	Training     TrainingOptions     `yaml:"training"`
}

// Corpus describes how raw content files are located, preprocessed and
// atomized before being fed to training. Exactly one of ID or Path must be
// set, and exactly one of the two atomizers.
type Corpus struct {
	Language                string                   `yaml:"language"`
	ID                      string                   `yaml:"id,omitempty"`
	Path                    string                   `yaml:"path,omitempty"`
	AsciiCharacterAtomizer  bool                     `yaml:"ascii_character_atomizer,omitempty"`
	GreedyMulticharAtomizer *GreedyMulticharAtomizer `yaml:"greedy_multichar_atomizer,omitempty"`
	Preprocessors           []string                 `yaml:"preprocessors"`
	SequenceLength          int                      `yaml:"sequence_length"`
	ContentfileSeparator    string                   `yaml:"contentfile_separator"`
}

type GreedyMulticharAtomizer struct {
	Tokens []string `yaml:"tokens"`
}

type NetworkArchitecture struct {
	NeuronType      string `yaml:"neuron_type"`
	NeuronsPerLayer int    `yaml:"neurons_per_layer"`
	NumLayers       int    `yaml:"num_layers"`
}

type TrainingOptions struct {
	NumEpochs              int     `yaml:"num_epochs"`
	ShuffleBetweenEpochs   bool    `yaml:"shuffle_between_epochs"`
	BatchSize              int     `yaml:"batch_size"`
	GradientClip           int     `yaml:"gradient_clip"`
	InitialLearningRate    float64 `yaml:"initial_learning_rate"`
	LRDecayPercentPerEpoch int     `yaml:"lr_decay_percent_per_epoch"`
	SaveCheckpoints        bool    `yaml:"save_checkpoints"`
}

// Sampler holds the seed text and termination rules for generation. The order
// of TerminationCriteria is significant: each criterion is checked, in
// sequence, for every generated token.
type Sampler struct {
	StartText           string                 `yaml:"start_text"`
	BatchSize           int                    `yaml:"batch_size"`
	SequenceLength      int                    `yaml:"sequence_length"`
	TemperatureMicros   int64                  `yaml:"temperature_micros"`
	TerminationCriteria []TerminationCriterion `yaml:"termination_criteria"`
}

// TerminationCriterion is a tagged union: exactly one member must be set.
type TerminationCriterion struct {
	MaxTokenLength        *MaxTokenLength        `yaml:"maxlen,omitempty"`
	SymmetricalTokenDepth *SymmetricalTokenDepth `yaml:"symtok,omitempty"`
}

type MaxTokenLength struct {
	MaximumTokensInSample int `yaml:"maximum_tokens_in_sample"`
}

type SymmetricalTokenDepth struct {
	DepthIncreaseToken string `yaml:"depth_increase_token"`
	DepthDecreaseToken string `yaml:"depth_decrease_token"`
}

type Database struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type Elasticsearch struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Index    string `yaml:"index"`
}

// Temperature converts the micros-encoded sampling temperature to a float.
// Zero means greedy (argmax) sampling.
func (s *Sampler) Temperature() float64 {
	return float64(s.TemperatureMicros) / 1e6
}

func (c *Corpus) setDefaults() {
	if c.SequenceLength == 0 {
		c.SequenceLength = 50
	}
	if c.ContentfileSeparator == "" {
		c.ContentfileSeparator = "\n\n"
	}
}

func (a *NetworkArchitecture) setDefaults() {
	if a.NeuronType == "" {
		a.NeuronType = NeuronTypeLSTM
	}
	if a.NeuronsPerLayer == 0 {
		a.NeuronsPerLayer = 512
	}
	if a.NumLayers == 0 {
		a.NumLayers = 2
	}
}

func (t *TrainingOptions) setDefaults() {
	if t.NumEpochs == 0 {
		t.NumEpochs = 50
	}
	if t.BatchSize == 0 {
		t.BatchSize = 128
	}
	if t.InitialLearningRate == 0 {
		t.InitialLearningRate = 0.001
	}
}

func (m *Model) setDefaults() {
	if m.Corpus != nil {
		m.Corpus.setDefaults()
	}
	m.Architecture.setDefaults()
	m.Training.setDefaults()
}

func (s *Sampler) setDefaults() {
	if s.BatchSize == 0 {
		s.BatchSize = 1
	}
	if s.SequenceLength == 0 {
		s.SequenceLength = 50
	}
}

func (c *Corpus) Validate() error {
	if (c.ID == "") == (c.Path == "") {
		return errf("corpus", "exactly one of id or path must be set")
	}
	hasChar := c.AsciiCharacterAtomizer
	hasGreedy := c.GreedyMulticharAtomizer != nil
	if hasChar == hasGreedy {
		return errf("corpus", "exactly one of ascii_character_atomizer or greedy_multichar_atomizer must be set")
	}
	if hasGreedy && len(c.GreedyMulticharAtomizer.Tokens) == 0 {
		return errf("corpus.greedy_multichar_atomizer", "tokens must not be empty")
	}
	if c.SequenceLength < 1 {
		return errf("corpus.sequence_length", "must be >= 1, got %d", c.SequenceLength)
	}
	return nil
}

func (a *NetworkArchitecture) Validate() error {
	switch strings.ToLower(a.NeuronType) {
	case NeuronTypeLSTM, NeuronTypeRNN, NeuronTypeGRU:
	default:
		return errf("architecture.neuron_type", "must be one of lstm, rnn, gru, got %q", a.NeuronType)
	}
	if a.NeuronsPerLayer <= 0 {
		return errf("architecture.neurons_per_layer", "must be > 0, got %d", a.NeuronsPerLayer)
	}
	if a.NumLayers <= 0 {
		return errf("architecture.num_layers", "must be > 0, got %d", a.NumLayers)
	}
	return nil
}

func (t *TrainingOptions) Validate() error {
	if t.NumEpochs <= 0 {
		return errf("training.num_epochs", "must be > 0, got %d", t.NumEpochs)
	}
	if t.BatchSize <= 0 {
		return errf("training.batch_size", "must be > 0, got %d", t.BatchSize)
	}
	if t.GradientClip < 0 {
		return errf("training.gradient_clip", "must be >= 0, got %d", t.GradientClip)
	}
	if t.InitialLearningRate <= 0 {
		return errf("training.initial_learning_rate", "must be > 0, got %v", t.InitialLearningRate)
	}
	if t.LRDecayPercentPerEpoch < 0 || t.LRDecayPercentPerEpoch > 100 {
		return errf("training.lr_decay_percent_per_epoch", "must be in [0, 100], got %d", t.LRDecayPercentPerEpoch)
	}
	return nil
}

func (m *Model) Validate() error {
	if m.Corpus == nil {
		return errf("model.corpus", "is required")
	}
	if err := m.Corpus.Validate(); err != nil {
		return err
	}
	if err := m.Architecture.Validate(); err != nil {
		return err
	}
	return m.Training.Validate()
}

func (c *TerminationCriterion) Validate() error {
	hasMaxlen := c.MaxTokenLength != nil
	hasSymtok := c.SymmetricalTokenDepth != nil
	if hasMaxlen == hasSymtok {
		return errf("termination_criteria", "exactly one of maxlen or symtok must be set")
	}
	if hasMaxlen && c.MaxTokenLength.MaximumTokensInSample <= 0 {
		return errf("termination_criteria.maxlen.maximum_tokens_in_sample",
			"must be > 0, got %d", c.MaxTokenLength.MaximumTokensInSample)
	}
	if hasSymtok {
		st := c.SymmetricalTokenDepth
		if st.DepthIncreaseToken == "" || st.DepthDecreaseToken == "" {
			return errf("termination_criteria.symtok", "depth tokens must not be empty")
		}
		if st.DepthIncreaseToken == st.DepthDecreaseToken {
			return errf("termination_criteria.symtok",
				"depth_increase_token and depth_decrease_token must differ, both are %q",
				st.DepthIncreaseToken)
		}
	}
	return nil
}

func (s *Sampler) Validate() error {
	if s.BatchSize <= 0 {
		return errf("sampler.batch_size", "must be > 0, got %d", s.BatchSize)
	}
	if s.SequenceLength <= 0 {
		return errf("sampler.sequence_length", "must be > 0, got %d", s.SequenceLength)
	}
	if s.TemperatureMicros < 0 {
		return errf("sampler.temperature_micros", "must be >= 0, got %d", s.TemperatureMicros)
	}
	if len(s.TerminationCriteria) == 0 {
		return errf("sampler.termination_criteria",
			"must not be empty: sampling would never terminate")
	}
	for i := range s.TerminationCriteria {
		if err := s.TerminationCriteria[i].Validate(); err != nil {
			return fmt.Errorf("criterion %d: %w", i, err)
		}
	}
	return nil
}

func (i *Instance) Validate() error {
	if i.Model == nil {
		return errf("model", "is required")
	}
	if i.Sampler == nil {
		return errf("sampler", "is required")
	}
	if err := i.Model.Validate(); err != nil {
		return err
	}
	return i.Sampler.Validate()
}

func readYAML(path string, out interface{}) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found at %s", path)
	}

	if DebugLog != nil {
		DebugLog("loading config from %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadInstance parses and validates a complete instance file. On success the
// returned Instance is fully populated with defaults applied and must be
// treated as immutable by callers.
func LoadInstance(path string) (*Instance, error) {
	var inst Instance
	if err := readYAML(path, &inst); err != nil {
		return nil, err
	}

	if inst.Model != nil {
		inst.Model.setDefaults()
	}
	if inst.Sampler != nil {
		inst.Sampler.setDefaults()
	}
	if inst.WorkingDir == "" {
		inst.WorkingDir = GetCacheDir()
	} else {
		inst.WorkingDir = ExpandPath(inst.WorkingDir)
	}

	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return &inst, nil
}

// LoadModel parses and validates a standalone model file.
func LoadModel(path string) (*Model, error) {
	var m Model
	if err := readYAML(path, &m); err != nil {
		return nil, err
	}
	m.setDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadCorpus parses and validates a standalone corpus file.
func LoadCorpus(path string) (*Corpus, error) {
	var c Corpus
	if err := readYAML(path, &c); err != nil {
		return nil, err
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadDatabase reads only the database and elasticsearch sections of an
// instance file, for subcommands that need storage access without a full
// model+sampler configuration.
func LoadDatabase(path string) (*Database, error) {
	var partial struct {
		Database Database `yaml:"database"`
	}
	if err := readYAML(path, &partial); err != nil {
		return nil, err
	}
	return &partial.Database, nil
}

// LoadSampler parses and validates a standalone sampler file.
func LoadSampler(path string) (*Sampler, error) {
	var s Sampler
	if err := readYAML(path, &s); err != nil {
		return nil, err
	}
	s.setDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
