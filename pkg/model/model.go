// Package model trains and steps the recurrent language model described by a
// network architecture and training options.
package model

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"clgen/pkg/config"
	"clgen/pkg/corpus"
	"clgen/pkg/database"
)

var DebugLog func(string, ...interface{})

// EpochStats summarizes one completed training epoch.
type EpochStats struct {
	Epoch        int
	BatchNum     int
	TimeMs       int64
	TrainingCost float64
}

type Model struct {
	cfg        *config.Model
	corpus     *corpus.Corpus
	net        *Network
	rng        *rand.Rand
	id         string
	workingDir string
	db         *database.DB
	trained    bool
	stats      []EpochStats
}

// New builds an untrained model for the given corpus. The model identity is
// the hash of the corpus content plus the architecture and training options,
// so differently configured models never share a cache directory.
func New(cfg *config.Model, corp *corpus.Corpus, workingDir string, db *database.DB) *Model {
	id := modelID(cfg, corp)
	rng := rand.New(rand.NewSource(seedFromID(id)))

	return &Model{
		cfg:        cfg,
		corpus:     corp,
		net:        newNetwork(cfg.Architecture, corp.VocabSize(), rng),
		rng:        rng,
		id:         id,
		workingDir: workingDir,
		db:         db,
	}
}

func modelID(cfg *config.Model, corp *corpus.Corpus) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%d|%d|%d|%v|%d|%d|%v|%d|%v",
		corp.Hash(),
		cfg.Architecture.NeuronType,
		cfg.Architecture.NeuronsPerLayer,
		cfg.Architecture.NumLayers,
		cfg.Training.NumEpochs,
		cfg.Training.ShuffleBetweenEpochs,
		cfg.Training.BatchSize,
		cfg.Training.GradientClip,
		cfg.Training.InitialLearningRate,
		cfg.Training.LRDecayPercentPerEpoch,
		cfg.Training.SaveCheckpoints,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func seedFromID(id string) int64 {
	var seed int64
	for _, b := range []byte(id) {
		seed = seed*31 + int64(b)
	}
	return seed
}

func (m *Model) ID() string { return m.id }

func (m *Model) Corpus() *corpus.Corpus { return m.corpus }

// Stats returns the per-epoch training statistics gathered so far.
func (m *Model) Stats() []EpochStats { return m.stats }

func (m *Model) CacheDir() string {
	return config.GetModelCacheDir(m.workingDir, m.id)
}

func (m *Model) weightsPath() string {
	return filepath.Join(m.CacheDir(), "weights.json")
}

// EnsureTrained loads cached weights if a prior run trained this exact model,
// otherwise trains from scratch and caches the result.
func (m *Model) EnsureTrained(ctx context.Context) error {
	if m.trained {
		return nil
	}
	if _, err := os.Stat(m.weightsPath()); err == nil {
		if DebugLog != nil {
			DebugLog("restoring cached weights from %s", m.weightsPath())
		}
		if err := m.LoadWeights(m.weightsPath()); err == nil {
			m.trained = true
			return nil
		}
		// Unreadable cache falls through to retraining.
	}
	return m.Train(ctx)
}

type trainingExample struct {
	input  []int
	target []int
}

// Train runs the full training schedule: truncated windows over the encoded
// corpus, cross-entropy loss, gradient clipping and per-epoch learning rate
// decay. Epoch statistics are recorded in the content database when enabled.
func (m *Model) Train(ctx context.Context) error {
	examples := m.slidingWindows()
	if len(examples) == 0 {
		return fmt.Errorf("corpus of %d tokens is too small for sequence length %d",
			len(m.corpus.Encoded()), m.corpus.SequenceLength())
	}

	opts := m.cfg.Training
	lr := opts.InitialLearningRate
	decay := 1 - float64(opts.LRDecayPercentPerEpoch)/100

	for epoch := 1; epoch <= opts.NumEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		epochStart := time.Now()

		if opts.ShuffleBetweenEpochs {
			m.rng.Shuffle(len(examples), func(i, j int) {
				examples[i], examples[j] = examples[j], examples[i]
			})
		}

		totalLoss := 0.0
		numBatches := 0
		for start := 0; start < len(examples); start += opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := start + opts.BatchSize
			if end > len(examples) {
				end = len(examples)
			}
			loss := m.trainBatch(examples[start:end], lr)
			totalLoss += loss
			numBatches++
		}

		stat := EpochStats{
			Epoch:        epoch,
			BatchNum:     numBatches,
			TimeMs:       time.Since(epochStart).Milliseconds(),
			TrainingCost: totalLoss / float64(numBatches),
		}
		m.stats = append(m.stats, stat)

		if DebugLog != nil {
			DebugLog("epoch %d/%d: %d batches, cost %.4f, lr %.6f, %dms",
				epoch, opts.NumEpochs, stat.BatchNum, stat.TrainingCost, lr, stat.TimeMs)
		}

		if m.db != nil && m.db.IsEnabled() {
			record := []database.EpochStatRecord{{
				ModelID:      m.id,
				Epoch:        stat.Epoch,
				BatchNum:     stat.BatchNum,
				TimeMs:       stat.TimeMs,
				TrainingCost: stat.TrainingCost,
			}}
			if err := m.db.RecordEpochStats(record); err != nil {
				return fmt.Errorf("failed to record epoch stats: %w", err)
			}
		}

		if opts.SaveCheckpoints {
			path := filepath.Join(m.CacheDir(), fmt.Sprintf("checkpoint-%03d.json", epoch))
			if err := m.SaveWeights(path, epoch); err != nil {
				return fmt.Errorf("failed to save checkpoint: %w", err)
			}
		}

		lr *= decay
	}

	if err := m.SaveWeights(m.weightsPath(), opts.NumEpochs); err != nil {
		return fmt.Errorf("failed to save weights: %w", err)
	}

	m.trained = true
	return nil
}

// slidingWindows cuts the encoded corpus into consecutive input/target pairs
// of the configured sequence length.
func (m *Model) slidingWindows() []trainingExample {
	data := m.corpus.Encoded()
	seqLen := m.corpus.SequenceLength()

	var examples []trainingExample
	for start := 0; start+seqLen+1 <= len(data); start += seqLen {
		examples = append(examples, trainingExample{
			input:  data[start : start+seqLen],
			target: data[start+1 : start+seqLen+1],
		})
	}
	return examples
}

// trainBatch accumulates gradients over the batch, clips them and applies one
// SGD update. Returns the mean per-token loss.
func (m *Model) trainBatch(batch []trainingExample, lr float64) float64 {
	for _, p := range m.net.params {
		p.Grad = 0
	}

	totalLoss := 0.0
	for _, ex := range batch {
		loss := m.exampleLoss(ex)
		totalLoss += loss.Data
		loss.Backward()
	}

	scale := 1 / float64(len(batch))
	m.clipGradients(scale)

	for _, p := range m.net.params {
		p.Data -= lr * p.Grad * scale
	}

	return totalLoss / float64(len(batch))
}

// exampleLoss is the mean cross-entropy of next-token prediction over one
// window.
func (m *Model) exampleLoss(ex trainingExample) *Value {
	states := m.net.initialState()

	loss := V(0)
	for pos, token := range ex.input {
		var logits []*Value
		logits, states = m.net.step(token, states)
		probs := softmaxValues(logits)
		loss = loss.Add(probs[ex.target[pos]].Log().Neg())
	}
	return loss.Mul(V(1 / float64(len(ex.input))))
}

// clipGradients applies global norm clipping with the configured bound. A
// bound of zero disables clipping.
func (m *Model) clipGradients(scale float64) {
	clip := float64(m.cfg.Training.GradientClip)
	if clip <= 0 {
		return
	}

	var norm float64
	for _, p := range m.net.params {
		g := p.Grad * scale
		norm += g * g
	}
	norm = math.Sqrt(norm)
	if norm <= clip {
		return
	}

	factor := clip / norm
	for _, p := range m.net.params {
		p.Grad *= factor
	}
}

// State is an opaque recurrent state owned by a single in-flight sample.
type State struct {
	cells []cellState
}

// NewState returns the zero state for a fresh sample.
func (m *Model) NewState() *State {
	return &State{cells: m.net.initialState()}
}

// Step feeds one token and returns the logits over the next token. The input
// state is not mutated, so callers may keep multiple independent sample rows.
func (m *Model) Step(st *State, token int) (*State, []float64) {
	logits, next := m.net.step(token, st.cells)
	return &State{cells: next}, logitsData(logits)
}
