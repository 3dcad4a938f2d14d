package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"clgen/pkg/config"
	"clgen/pkg/corpus"
	"clgen/pkg/database"
	"clgen/pkg/model"
)

func trainedModel(t *testing.T) *model.Model {
	t.Helper()

	dir := t.TempDir()
	text := "kernel void a() { x; y; z; }\nkernel void b() { x; }\n"
	if err := os.WriteFile(filepath.Join(dir, "a.cl"), []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	corpusCfg := &config.Corpus{
		Language:               "opencl",
		Path:                   dir,
		AsciiCharacterAtomizer: true,
		SequenceLength:         5,
		ContentfileSeparator:   "\n\n",
	}
	db, err := database.New(&config.Database{})
	if err != nil {
		t.Fatal(err)
	}
	corp, err := corpus.Build(context.Background(), corpusCfg, db)
	if err != nil {
		t.Fatalf("corpus build: %v", err)
	}

	modelCfg := &config.Model{
		Architecture: config.NetworkArchitecture{
			NeuronType:      config.NeuronTypeRNN,
			NeuronsPerLayer: 4,
			NumLayers:       1,
		},
		Training: config.TrainingOptions{
			NumEpochs:           1,
			BatchSize:           4,
			GradientClip:        5,
			InitialLearningRate: 0.01,
		},
	}

	mdl := model.New(modelCfg, corp, t.TempDir(), db)
	if err := mdl.EnsureTrained(context.Background()); err != nil {
		t.Fatalf("EnsureTrained: %v", err)
	}
	return mdl
}

func TestNewPredictorStepsModel(t *testing.T) {
	mdl := trainedModel(t)
	pred := NewPredictor(mdl)

	vocabSize := mdl.Corpus().VocabSize()
	st := pred.NewState()
	st, logits := pred.Step(st, 0)
	if st == nil {
		t.Fatal("Step returned nil state")
	}
	if len(logits) != vocabSize {
		t.Fatalf("logits: got %d values, want %d", len(logits), vocabSize)
	}
	for i, l := range logits {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			t.Fatalf("logit %d is not finite: %v", i, l)
		}
	}
}
