package pipeline

import (
	"context"
	"fmt"
	"time"

	"clgen/pkg/config"
	"clgen/pkg/corpus"
	"clgen/pkg/database"
	"clgen/pkg/elastic"
	"clgen/pkg/model"
	"clgen/pkg/sampler"

	"github.com/sirupsen/logrus"
)

var DebugLog func(string, ...interface{})

type Pipeline struct {
	config *config.Instance
	logger *logrus.Logger
	db     *database.DB
}

type RunOptions struct {
	NumBatches int
	TrainOnly  bool
}

type RunResult struct {
	ModelID         string
	SamplerID       string
	NumFiles        int
	DroppedFiles    int
	VocabSize       int
	Samples         []sampler.Sample
	EarlyTerminated int
	CriterionFires  map[string]int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var levelText string
	switch entry.Level {
	case logrus.InfoLevel:
		levelText = "[INF]"
	case logrus.WarnLevel:
		levelText = "[WARN]"
	case logrus.ErrorLevel:
		levelText = "[ERR]"
	case logrus.DebugLevel:
		levelText = "[DBG]"
	default:
		levelText = "[???]"
	}
	return []byte(fmt.Sprintf("%s %s\n", levelText, entry.Message)), nil
}

func New(configPath string) (*Pipeline, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&customFormatter{})

	cfg, err := config.LoadInstance(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Warnf("Database initialization failed: %v", err)
	}

	return &Pipeline{
		config: cfg,
		logger: logger,
		db:     db,
	}, nil
}

func (p *Pipeline) Config() *config.Instance { return p.config }

func (p *Pipeline) Logger() *logrus.Logger { return p.logger }

func (p *Pipeline) DB() *database.DB { return p.db }

func (p *Pipeline) SetVerbose() {
	p.logger.SetLevel(logrus.DebugLevel)
}

func (p *Pipeline) Close() {
	if p.db != nil {
		p.db.Close()
	}
}

// predictor bridges the trained model to the sampler's step interface.
type predictor struct {
	m *model.Model
}

// NewPredictor wraps a trained model for use with sampler.RunBatch.
func NewPredictor(m *model.Model) sampler.Predictor {
	return predictor{m}
}

func (p predictor) NewState() sampler.State {
	return p.m.NewState()
}

func (p predictor) Step(st sampler.State, token int) (sampler.State, []float64) {
	return p.m.Step(st.(*model.State), token)
}

// Run executes the full train-then-sample flow: build the corpus, train the
// model if no cached weights exist, then generate NumBatches batches of
// samples, persisting and indexing each batch as it completes.
func (p *Pipeline) Run(ctx context.Context, options RunOptions) (*RunResult, error) {
	startTime := time.Now()

	result := &RunResult{
		StartTime:      startTime,
		CriterionFires: make(map[string]int),
	}

	p.logger.Info("Building corpus")
	corp, err := corpus.Build(ctx, p.config.Model.Corpus, p.db)
	if err != nil {
		return nil, fmt.Errorf("corpus build failed: %w", err)
	}
	result.NumFiles = corp.NumFiles()
	result.DroppedFiles = len(corp.DroppedFiles())
	result.VocabSize = corp.VocabSize()
	for _, d := range corp.DroppedFiles() {
		p.logger.Warnf("Dropped %s: %v", d.Path, d.Err)
	}
	p.logger.Infof("Corpus ready: %d files (%d dropped), vocabulary of %d atoms",
		corp.NumFiles(), len(corp.DroppedFiles()), corp.VocabSize())

	mdl := model.New(p.config.Model, corp, p.config.WorkingDir, p.db)
	result.ModelID = mdl.ID()
	arch := &p.config.Model.Architecture
	p.logger.Infof("Model %s: %s, %d layers of %d neurons",
		mdl.ID()[:8], arch.NeuronType, arch.NumLayers, arch.NeuronsPerLayer)

	if err := mdl.EnsureTrained(ctx); err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	if options.TrainOnly {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(startTime)
		return result, nil
	}

	smp, err := sampler.New(p.config.Sampler, corp.Atomizer())
	if err != nil {
		return nil, fmt.Errorf("sampler setup failed: %w", err)
	}
	result.SamplerID = smp.ID()

	numBatches := options.NumBatches
	if numBatches <= 0 {
		numBatches = 1
	}

	for batch := 0; batch < numBatches; batch++ {
		batchResult, err := smp.RunBatch(ctx, predictor{mdl})
		if err != nil {
			return nil, fmt.Errorf("sampling failed: %w", err)
		}

		result.Samples = append(result.Samples, batchResult.Samples...)
		result.EarlyTerminated += batchResult.EarlyTerminated
		for name, n := range batchResult.CriterionFires {
			result.CriterionFires[name] += n
		}

		p.logger.Infof("Batch %d/%d: %d samples in %s",
			batch+1, numBatches, len(batchResult.Samples), batchResult.Duration.Round(time.Millisecond))
		if batchResult.EarlyTerminated > 0 {
			p.logger.Warnf("%d samples terminated early", batchResult.EarlyTerminated)
		}

		if err := p.persistSamples(ctx, mdl.ID(), smp.ID(), batchResult.Samples); err != nil {
			p.logger.Warnf("Failed to persist samples: %v", err)
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)
	return result, nil
}

func (p *Pipeline) persistSamples(ctx context.Context, modelID, samplerID string, samples []sampler.Sample) error {
	records := make([]database.SampleRecord, 0, len(samples))
	for _, s := range samples {
		records = append(records, database.SampleRecord{
			ModelID:               modelID,
			SamplerID:             samplerID,
			Text:                  s.Text,
			SampleTimeMs:          s.SampleTimeMs,
			SampleStartEpochMsUTC: s.SampleStartEpochMsUTC,
			TerminatedBy:          s.TerminatedBy,
		})
	}

	if p.db != nil && p.db.IsEnabled() {
		if err := p.db.RecordSamples(records); err != nil {
			return fmt.Errorf("database write failed: %w", err)
		}
		if DebugLog != nil {
			DebugLog("recorded %d samples to database", len(records))
		}
	}

	if p.config.Elasticsearch.Enabled {
		client, err := elastic.New(p.config.Elasticsearch)
		if err != nil {
			return fmt.Errorf("elasticsearch setup failed: %w", err)
		}
		if err := client.IndexSamples(ctx, records); err != nil {
			return fmt.Errorf("elasticsearch indexing failed: %w", err)
		}
	}

	return nil
}
