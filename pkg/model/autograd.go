package model

import "math"

// Value is a node in a small reverse-mode automatic differentiation graph.
// Data is the scalar, Grad accumulates d(loss)/d(value) during Backward.
type Value struct {
	Data       float64
	Grad       float64
	children   []*Value
	localGrads []float64
}

func V(data float64) *Value {
	return &Value{Data: data}
}

func (v *Value) Add(other *Value) *Value {
	return &Value{
		Data:       v.Data + other.Data,
		children:   []*Value{v, other},
		localGrads: []float64{1, 1},
	}
}

func (v *Value) Mul(other *Value) *Value {
	return &Value{
		Data:       v.Data * other.Data,
		children:   []*Value{v, other},
		localGrads: []float64{other.Data, v.Data},
	}
}

func (v *Value) Neg() *Value {
	return &Value{
		Data:       -v.Data,
		children:   []*Value{v},
		localGrads: []float64{-1},
	}
}

func (v *Value) Log() *Value {
	return &Value{
		Data:       math.Log(v.Data),
		children:   []*Value{v},
		localGrads: []float64{1 / v.Data},
	}
}

func (v *Value) Exp() *Value {
	exp := math.Exp(v.Data)
	return &Value{
		Data:       exp,
		children:   []*Value{v},
		localGrads: []float64{exp},
	}
}

// Sigmoid has local derivative s*(1-s).
func (v *Value) Sigmoid() *Value {
	s := 1.0 / (1.0 + math.Exp(-v.Data))
	return &Value{
		Data:       s,
		children:   []*Value{v},
		localGrads: []float64{s * (1 - s)},
	}
}

// Tanh has local derivative 1-t*t.
func (v *Value) Tanh() *Value {
	t := math.Tanh(v.Data)
	return &Value{
		Data:       t,
		children:   []*Value{v},
		localGrads: []float64{1 - t*t},
	}
}

// Backward runs reverse-mode autodiff from this node: build a topological
// order, seed the output gradient with 1 and push gradients to all ancestors.
// Gradients accumulate, so parameter grads must be zeroed between steps.
func (v *Value) Backward() {
	var topo []*Value
	visited := make(map[*Value]bool)

	var buildTopo func(*Value)
	buildTopo = func(node *Value) {
		if visited[node] {
			return
		}
		visited[node] = true
		for _, child := range node.children {
			buildTopo(child)
		}
		topo = append(topo, node)
	}
	buildTopo(v)

	v.Grad = 1
	for i := len(topo) - 1; i >= 0; i-- {
		curr := topo[i]
		for j, child := range curr.children {
			child.Grad += curr.localGrads[j] * curr.Grad
		}
	}
}
