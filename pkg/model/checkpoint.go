package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// checkpoint is the JSON weight snapshot written to the model cache dir.
type checkpoint struct {
	ModelID         string    `json:"model_id"`
	NeuronType      string    `json:"neuron_type"`
	NeuronsPerLayer int       `json:"neurons_per_layer"`
	NumLayers       int       `json:"num_layers"`
	VocabSize       int       `json:"vocab_size"`
	Epoch           int       `json:"epoch"`
	Weights         []float64 `json:"weights"`
}

// SaveWeights snapshots all parameters. Parameter order is fixed by network
// construction, so a flat vector round-trips exactly.
func (m *Model) SaveWeights(path string, epoch int) error {
	ckpt := checkpoint{
		ModelID:         m.id,
		NeuronType:      m.cfg.Architecture.NeuronType,
		NeuronsPerLayer: m.cfg.Architecture.NeuronsPerLayer,
		NumLayers:       m.cfg.Architecture.NumLayers,
		VocabSize:       m.net.vocabSize,
		Epoch:           epoch,
		Weights:         make([]float64, len(m.net.params)),
	}
	for i, p := range m.net.params {
		ckpt.Weights[i] = p.Data
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.Marshal(&ckpt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *Model) LoadWeights(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var ckpt checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return fmt.Errorf("corrupt checkpoint %s: %w", path, err)
	}

	if ckpt.VocabSize != m.net.vocabSize {
		return fmt.Errorf("checkpoint vocab size %d does not match corpus vocab size %d",
			ckpt.VocabSize, m.net.vocabSize)
	}
	if len(ckpt.Weights) != len(m.net.params) {
		return fmt.Errorf("checkpoint has %d weights, network has %d parameters",
			len(ckpt.Weights), len(m.net.params))
	}

	for i, w := range ckpt.Weights {
		m.net.params[i].Data = w
	}
	return nil
}
