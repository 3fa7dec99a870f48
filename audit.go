package goReset

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/goReset/internal/audit"
)

// Audit event types.
const (
	AuditResetRequest = audit.EventResetRequest
	AuditResetIssue   = audit.EventResetIssue
	AuditResetRedeem  = audit.EventResetRedeem
	AuditResetReplay  = audit.EventResetReplay
	AuditRateLimited  = audit.EventRateLimited
)

// NoOpSink drops every event.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events in a channel; see NewChannelSink.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per event.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink logs events through slog.
type SlogSink = audit.SlogSink

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

func NewSlogSink(logger *slog.Logger) *SlogSink { return audit.NewSlogSink(logger) }
