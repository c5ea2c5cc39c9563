package middleware

import (
	"context"
	"time"

	"learnhub/internal/app/commands"
	"learnhub/internal/app/queries"
)

// Observer records how long each bus message took and whether it failed.
type Observer interface {
	Observe(kind, key string, took time.Duration, err error)
}

func Instrument(o Observer) CommandMiddleware {
	if o == nil {
		panic("middleware: observer required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, cmd)
			o.Observe("command", cmd.Key(), time.Since(start), err)
			return res, err
		})
	}
}

func QueryInstrument(o Observer) QueryMiddleware {
	if o == nil {
		panic("middleware: observer required")
	}
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, q)
			o.Observe("query", q.Key(), time.Since(start), err)
			return res, err
		})
	}
}
