// Package groutine starts goroutines carrying a name in both their context and
// their pprof labels, so profiles and logs can tell the engine's loops apart.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey struct{}

const labelKey = "goroutine_name"

// Go runs fn on a new goroutine labelled name and returns a channel closed
// when fn returns. A nil parent means context.Background().
//
//	done := groutine.Go(ctx, "central-dispatch", loop)
//	<-done
func Go(parent context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	if parent == nil {
		parent = context.Background()
	}
	done := make(chan struct{})

	go pprof.Do(parent, pprof.Labels(labelKey, name), func(ctx context.Context) {
		defer close(done)
		fn(context.WithValue(ctx, ctxKey{}, name))
	})
	return done
}

// Name returns the name given to the goroutine owning ctx, or "".
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(ctxKey{}).(string)
	return name
}
