package isolate

import "context"

type envCtxKey struct{}

// withEnvironment marks ctx as executing on e's goroutine. The environment
// loop applies it to every task context, which is how inline execution and
// the self-debugging check recognize their own environment.
func withEnvironment(ctx context.Context, e *Environment) context.Context {
	return context.WithValue(ctx, envCtxKey{}, e)
}

func fromContext(ctx context.Context) *Environment {
	e, _ := ctx.Value(envCtxKey{}).(*Environment)
	return e
}
