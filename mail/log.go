package mail

import (
	"context"
	"io"
	"log/slog"

	"github.com/MrEthical07/goReset/internal/redact"
)

// LogMailer writes messages to a logger instead of delivering them. The body
// contains a live reset link, so it is only logged when IncludeBody is set.
type LogMailer struct {
	Logger      *slog.Logger
	IncludeBody bool
}

func (l LogMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	attrs := []slog.Attr{
		redact.EmailAttr(msg.To),
		slog.String("subject", msg.Subject),
	}
	if l.IncludeBody {
		attrs = append(attrs, slog.String("body", msg.Body))
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "mail suppressed", attrs...)
	return nil
}
