package oracle

import "context"

// Call runs req and decodes the result into a fresh T.
func Call[T any](ctx context.Context, e *Executor, req Request, validate func(*T) error) (T, Metrics, error) {
	var out T
	var check func() error
	if validate != nil {
		check = func() error { return validate(&out) }
	}
	m, err := e.Run(ctx, req, &out, check)
	return out, m, err
}
