package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutProvider bounds each call to the inner provider. A call that
// runs out of time fails with *ErrProviderUnavailable.
type TimeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// WithTimeout wraps p so every Generate call gets its own deadline. A
// non-positive timeout returns p unchanged.
func WithTimeout(p Provider, timeout time.Duration) Provider {
	if timeout <= 0 {
		return p
	}
	return &TimeoutProvider{inner: p, timeout: timeout}
}

func (t *TimeoutProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.inner.Generate(callCtx, req)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		var unavail *ErrProviderUnavailable
		if !errors.As(err, &unavail) {
			err = &ErrProviderUnavailable{Err: err}
		}
	}
	return resp, err
}

func (t *TimeoutProvider) ModelID() string {
	return t.inner.ModelID()
}
