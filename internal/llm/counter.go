package llm

import (
	"context"
	"sync/atomic"
)

// CallCounter tracks reasoning invocations for one process or test. It is
// passed explicitly to whoever needs it.
type CallCounter struct {
	calls    atomic.Int64
	failures atomic.Int64
}

func (c *CallCounter) Calls() int64 {
	if c == nil {
		return 0
	}
	return c.calls.Load()
}

func (c *CallCounter) Failures() int64 {
	if c == nil {
		return 0
	}
	return c.failures.Load()
}

func (c *CallCounter) Reset() {
	if c == nil {
		return
	}
	c.calls.Store(0)
	c.failures.Store(0)
}

// Counting wraps r so every Complete call is recorded on c.
func Counting(r Reasoner, c *CallCounter) Reasoner {
	if c == nil {
		return r
	}
	return &countingReasoner{next: r, counter: c}
}

type countingReasoner struct {
	next    Reasoner
	counter *CallCounter
}

func (r *countingReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	r.counter.calls.Add(1)
	out, err := r.next.Complete(ctx, prompt)
	if err != nil {
		r.counter.failures.Add(1)
	}
	return out, err
}
