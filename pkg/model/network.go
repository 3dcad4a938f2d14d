package model

import (
	"math"
	"math/rand"
	"strings"

	"clgen/pkg/config"
)

type cellState struct {
	h []*Value
	c []*Value // cell memory, LSTM only
}

type cell interface {
	step(x []*Value, st cellState) ([]*Value, cellState)
	initialState() cellState
}

// Network is a stack of recurrent cells between a token embedding and an
// output projection over the vocabulary.
type Network struct {
	neuronType string
	units      int
	vocabSize  int

	wte    [][]*Value // token embedding [vocab][units]
	cells  []cell
	head   [][]*Value // output projection [vocab][units]
	headB  []*Value
	params []*Value
}

func newNetwork(arch config.NetworkArchitecture, vocabSize int, rng *rand.Rand) *Network {
	n := &Network{
		neuronType: strings.ToLower(arch.NeuronType),
		units:      arch.NeuronsPerLayer,
		vocabSize:  vocabSize,
	}

	n.wte = n.newMatrix(vocabSize, n.units, rng)
	n.head = n.newMatrix(vocabSize, n.units, rng)
	n.headB = n.newVector(vocabSize)

	for layer := 0; layer < arch.NumLayers; layer++ {
		switch n.neuronType {
		case config.NeuronTypeRNN:
			n.cells = append(n.cells, newRNNCell(n, n.units, rng))
		case config.NeuronTypeGRU:
			n.cells = append(n.cells, newGRUCell(n, n.units, rng))
		default:
			n.cells = append(n.cells, newLSTMCell(n, n.units, rng))
		}
	}

	return n
}

// newMatrix registers a [rows][cols] parameter matrix with small Gaussian
// initialization.
func (n *Network) newMatrix(rows, cols int, rng *rand.Rand) [][]*Value {
	mat := make([][]*Value, rows)
	for i := range mat {
		mat[i] = make([]*Value, cols)
		for j := range mat[i] {
			v := V(rng.NormFloat64() * 0.08)
			mat[i][j] = v
			n.params = append(n.params, v)
		}
	}
	return mat
}

func (n *Network) newVector(size int) []*Value {
	vec := make([]*Value, size)
	for i := range vec {
		v := V(0)
		vec[i] = v
		n.params = append(n.params, v)
	}
	return vec
}

func (n *Network) initialState() []cellState {
	states := make([]cellState, len(n.cells))
	for i, c := range n.cells {
		states[i] = c.initialState()
	}
	return states
}

// step feeds one token through the network and returns the logits for the
// next token plus the successor state. The input state is not mutated.
func (n *Network) step(token int, states []cellState) ([]*Value, []cellState) {
	x := n.wte[token]

	next := make([]cellState, len(n.cells))
	for i, c := range n.cells {
		x, next[i] = c.step(x, states[i])
	}

	logits := make([]*Value, n.vocabSize)
	for i, row := range n.head {
		sum := n.headB[i]
		for j, xj := range x {
			sum = sum.Add(row[j].Mul(xj))
		}
		logits[i] = sum
	}
	return logits, next
}

// linear computes W*x + b for W of shape [out][in].
func linear(x []*Value, w [][]*Value, b []*Value) []*Value {
	out := make([]*Value, len(w))
	for i, row := range w {
		sum := b[i]
		for j, xj := range x {
			sum = sum.Add(row[j].Mul(xj))
		}
		out[i] = sum
	}
	return out
}

func zeroState(units int) []*Value {
	vec := make([]*Value, units)
	for i := range vec {
		vec[i] = V(0)
	}
	return vec
}

// rnnCell: h' = tanh(W*x + U*h + b)
type rnnCell struct {
	units int
	w, u  [][]*Value
	b     []*Value
}

func newRNNCell(n *Network, units int, rng *rand.Rand) *rnnCell {
	return &rnnCell{
		units: units,
		w:     n.newMatrix(units, units, rng),
		u:     n.newMatrix(units, units, rng),
		b:     n.newVector(units),
	}
}

func (c *rnnCell) initialState() cellState {
	return cellState{h: zeroState(c.units)}
}

func (c *rnnCell) step(x []*Value, st cellState) ([]*Value, cellState) {
	wx := linear(x, c.w, c.b)
	uh := linear(st.h, c.u, zeroState(c.units))
	h := make([]*Value, c.units)
	for i := range h {
		h[i] = wx[i].Add(uh[i]).Tanh()
	}
	return h, cellState{h: h}
}

// gruCell:
//
//	z = sigmoid(Wz*x + Uz*h + bz)
//	r = sigmoid(Wr*x + Ur*h + br)
//	hc = tanh(Wh*x + Uh*(r.h) + bh)
//	h' = (1-z).h + z.hc
type gruCell struct {
	units      int
	wz, wr, wh [][]*Value
	uz, ur, uh [][]*Value
	bz, br, bh []*Value
}

func newGRUCell(n *Network, units int, rng *rand.Rand) *gruCell {
	return &gruCell{
		units: units,
		wz:    n.newMatrix(units, units, rng),
		wr:    n.newMatrix(units, units, rng),
		wh:    n.newMatrix(units, units, rng),
		uz:    n.newMatrix(units, units, rng),
		ur:    n.newMatrix(units, units, rng),
		uh:    n.newMatrix(units, units, rng),
		bz:    n.newVector(units),
		br:    n.newVector(units),
		bh:    n.newVector(units),
	}
}

func (c *gruCell) initialState() cellState {
	return cellState{h: zeroState(c.units)}
}

func (c *gruCell) step(x []*Value, st cellState) ([]*Value, cellState) {
	zero := zeroState(c.units)
	one := V(1)

	wzx := linear(x, c.wz, c.bz)
	uzh := linear(st.h, c.uz, zero)
	wrx := linear(x, c.wr, c.br)
	urh := linear(st.h, c.ur, zero)

	z := make([]*Value, c.units)
	r := make([]*Value, c.units)
	for i := 0; i < c.units; i++ {
		z[i] = wzx[i].Add(uzh[i]).Sigmoid()
		r[i] = wrx[i].Add(urh[i]).Sigmoid()
	}

	rh := make([]*Value, c.units)
	for i := 0; i < c.units; i++ {
		rh[i] = r[i].Mul(st.h[i])
	}

	whx := linear(x, c.wh, c.bh)
	uhrh := linear(rh, c.uh, zero)

	h := make([]*Value, c.units)
	for i := 0; i < c.units; i++ {
		hc := whx[i].Add(uhrh[i]).Tanh()
		h[i] = one.Add(z[i].Neg()).Mul(st.h[i]).Add(z[i].Mul(hc))
	}
	return h, cellState{h: h}
}

// lstmCell:
//
//	i = sigmoid(Wi*x + Ui*h + bi)
//	f = sigmoid(Wf*x + Uf*h + bf)
//	o = sigmoid(Wo*x + Uo*h + bo)
//	g = tanh(Wg*x + Ug*h + bg)
//	c' = f.c + i.g
//	h' = o.tanh(c')
type lstmCell struct {
	units          int
	wi, wf, wo, wg [][]*Value
	ui, uf, uo, ug [][]*Value
	bi, bf, bo, bg []*Value
}

func newLSTMCell(n *Network, units int, rng *rand.Rand) *lstmCell {
	c := &lstmCell{
		units: units,
		wi:    n.newMatrix(units, units, rng),
		wf:    n.newMatrix(units, units, rng),
		wo:    n.newMatrix(units, units, rng),
		wg:    n.newMatrix(units, units, rng),
		ui:    n.newMatrix(units, units, rng),
		uf:    n.newMatrix(units, units, rng),
		uo:    n.newMatrix(units, units, rng),
		ug:    n.newMatrix(units, units, rng),
		bi:    n.newVector(units),
		bf:    n.newVector(units),
		bo:    n.newVector(units),
		bg:    n.newVector(units),
	}
	// Forget gate bias starts at 1 so early training does not wipe memory.
	for _, b := range c.bf {
		b.Data = 1
	}
	return c
}

func (c *lstmCell) initialState() cellState {
	return cellState{h: zeroState(c.units), c: zeroState(c.units)}
}

func (c *lstmCell) step(x []*Value, st cellState) ([]*Value, cellState) {
	zero := zeroState(c.units)

	wix := linear(x, c.wi, c.bi)
	wfx := linear(x, c.wf, c.bf)
	wox := linear(x, c.wo, c.bo)
	wgx := linear(x, c.wg, c.bg)
	uih := linear(st.h, c.ui, zero)
	ufh := linear(st.h, c.uf, zero)
	uoh := linear(st.h, c.uo, zero)
	ugh := linear(st.h, c.ug, zero)

	h := make([]*Value, c.units)
	cn := make([]*Value, c.units)
	for idx := 0; idx < c.units; idx++ {
		i := wix[idx].Add(uih[idx]).Sigmoid()
		f := wfx[idx].Add(ufh[idx]).Sigmoid()
		o := wox[idx].Add(uoh[idx]).Sigmoid()
		g := wgx[idx].Add(ugh[idx]).Tanh()

		cn[idx] = f.Mul(st.c[idx]).Add(i.Mul(g))
		h[idx] = o.Mul(cn[idx].Tanh())
	}
	return h, cellState{h: h, c: cn}
}

// softmaxValues converts logits into a probability graph, subtracting the max
// logit for numerical stability.
func softmaxValues(logits []*Value) []*Value {
	maxVal := math.Inf(-1)
	for _, l := range logits {
		if l.Data > maxVal {
			maxVal = l.Data
		}
	}
	shift := V(-maxVal)

	exps := make([]*Value, len(logits))
	sum := V(0)
	for i, l := range logits {
		exps[i] = l.Add(shift).Exp()
		sum = sum.Add(exps[i])
	}

	probs := make([]*Value, len(logits))
	invSum := sum.Log().Neg().Exp() // 1/sum
	for i := range exps {
		probs[i] = exps[i].Mul(invSum)
	}
	return probs
}

func logitsData(logits []*Value) []float64 {
	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = l.Data
	}
	return out
}
