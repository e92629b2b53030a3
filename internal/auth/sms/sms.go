// Package sms dispatches text messages.
package sms

import (
	"context"
	"log/slog"
)

// Sender delivers a single text message.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// LogSender writes messages to the log instead of delivering them. It is the
// fallback when no SMS gateway is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, body string) error {
	s.logger.InfoContext(ctx, "sms not configured, logging message instead", "to", to, "body", body)
	return nil
}
