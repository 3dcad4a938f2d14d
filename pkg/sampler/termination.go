package sampler

import (
	"fmt"

	"clgen/pkg/config"
)

// SamplingError reports that one in-flight sample reached an invalid state.
// It terminates that sample early; the batch continues.
type SamplingError struct {
	Criterion string
	Reason    string
}

func (e *SamplingError) Error() string {
	return fmt.Sprintf("sampling: %s: %s", e.Criterion, e.Reason)
}

// Criterion decides, after each token is appended to a candidate sample,
// whether generation of that sample must stop. Each in-flight sample owns its
// own criterion instances; no state is shared between samples in a batch.
type Criterion interface {
	Name() string

	// Initialize seeds the criterion's counters from the seed tokens before
	// any generated token is produced.
	Initialize(seed []string)

	// Consume updates counters for the newly appended token and reports
	// whether this criterion alone now demands termination.
	Consume(token string) bool

	// Err reports an invalid terminal state, if any, after Consume returned
	// true.
	Err() error
}

const (
	criterionMaxLength = "maxlen"
	criterionSymDepth  = "symtok"
)

// newCriteria instantiates fresh evaluator state for one sample, preserving
// the declared criterion order.
func newCriteria(cfgs []config.TerminationCriterion) []Criterion {
	criteria := make([]Criterion, 0, len(cfgs))
	for _, c := range cfgs {
		if c.MaxTokenLength != nil {
			criteria = append(criteria, &maxLengthCriterion{
				max: c.MaxTokenLength.MaximumTokensInSample,
			})
		} else if c.SymmetricalTokenDepth != nil {
			criteria = append(criteria, &symmetricalDepthCriterion{
				increase: c.SymmetricalTokenDepth.DepthIncreaseToken,
				decrease: c.SymmetricalTokenDepth.DepthDecreaseToken,
			})
		}
	}
	return criteria
}

// maxLengthCriterion stops a sample once its total token count, seed
// included, reaches the configured bound.
type maxLengthCriterion struct {
	max   int
	count int
}

func (c *maxLengthCriterion) Name() string { return criterionMaxLength }

func (c *maxLengthCriterion) Initialize(seed []string) {
	c.count = len(seed)
}

func (c *maxLengthCriterion) Consume(string) bool {
	c.count++
	return c.count >= c.max
}

func (c *maxLengthCriterion) Err() error { return nil }

// symmetricalDepthCriterion tracks the running signed count of open minus
// close marker tokens. It stops when the depth returns to zero after having
// been positive at least once. A negative depth signals malformed output and
// stops the sample immediately.
type symmetricalDepthCriterion struct {
	increase string
	decrease string

	depth     int
	opened    bool
	underflow bool
}

func (c *symmetricalDepthCriterion) Name() string { return criterionSymDepth }

func (c *symmetricalDepthCriterion) Initialize(seed []string) {
	c.depth = 0
	c.opened = false
	c.underflow = false
	for _, token := range seed {
		c.apply(token)
	}
}

func (c *symmetricalDepthCriterion) apply(token string) {
	switch token {
	case c.increase:
		c.depth++
		c.opened = true
	case c.decrease:
		c.depth--
	}
}

func (c *symmetricalDepthCriterion) Consume(token string) bool {
	c.apply(token)
	if c.depth < 0 {
		c.underflow = true
		return true
	}
	return c.opened && c.depth == 0
}

func (c *symmetricalDepthCriterion) Err() error {
	if c.underflow {
		return &SamplingError{
			Criterion: c.Name(),
			Reason:    fmt.Sprintf("more %q than %q: depth underflow", c.decrease, c.increase),
		}
	}
	return nil
}
