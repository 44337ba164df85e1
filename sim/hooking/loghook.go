package hooking

import (
	"context"
	"fmt"
	"log/slog"
)

// A LogHook writes every hook invocation of a domain to a structured logger.
type LogHook struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogHook creates a LogHook that writes with the given logger at the given
// level. A nil logger means slog.Default().
func NewLogHook(logger *slog.Logger, level slog.Level) *LogHook {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogHook{logger: logger, level: level}
}

// Func logs the hook context.
func (h *LogHook) Func(ctx HookCtx) {
	if !h.logger.Enabled(context.Background(), h.level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("pos", ctx.Pos.Name),
	}

	if named, ok := ctx.Domain.(Named); ok {
		attrs = append(attrs, slog.String("domain", named.Name()))
	}

	if ctx.Item != nil {
		attrs = append(attrs, slog.String("item", fmt.Sprintf("%+v", ctx.Item)))
	}

	if ctx.Detail != nil {
		attrs = append(attrs,
			slog.String("detail", fmt.Sprintf("%+v", ctx.Detail)))
	}

	h.logger.LogAttrs(context.Background(), h.level, "hook", attrs...)
}
