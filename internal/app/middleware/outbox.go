package middleware

import (
	"context"
	"log/slog"

	"learnhub/internal/app/commands"
	"learnhub/internal/app/outbox"
	"learnhub/internal/app/queries"
)

// OutboxFlush flushes buffered events after a successful command. The command has
// already been applied at that point, so a flush failure is logged and not returned.
func OutboxFlush(box outbox.Outbox, logger *slog.Logger) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := nextFn(ctx, cmd)
			if err != nil {
				return nil, err
			}
			if err := box.Flush(ctx); err != nil {
				logger.Warn("outbox flush failed", "command", cmd.Key(), "error", err)
			}
			return res, nil
		})
	}
}

// QueryOutboxFlush covers queries with side effects, such as opening a conversation.
func QueryOutboxFlush(box outbox.Outbox, logger *slog.Logger) QueryMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			res, err := nextFn(ctx, q)
			if err != nil {
				return nil, err
			}
			if err := box.Flush(ctx); err != nil {
				logger.Warn("outbox flush failed", "query", q.Key(), "error", err)
			}
			return res, nil
		})
	}
}
