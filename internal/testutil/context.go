package testutil

import (
	"context"
	"log/slog"

	"github.com/vk/flowgridgo/internal/ctxlog"
)

// Context returns a background context carrying a debug-level logger that
// writes into the returned buffer.
func Context() (context.Context, *SafeBuffer) {
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return ctxlog.WithLogger(context.Background(), logger), buf
}
