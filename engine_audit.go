package goReset

import (
	"context"
	"errors"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrInvalidEmail    AuditErrorCode = "invalid_email"
	auditErrAccountNotFound AuditErrorCode = "account_not_found"
	auditErrTokenInvalid    AuditErrorCode = "invalid_token"
	auditErrTokenConflict   AuditErrorCode = "token_replay"
	auditErrPasswordPolicy  AuditErrorCode = "password_policy"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrDelivery        AuditErrorCode = "delivery_failed"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	ip string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        ip,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}
	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidEmail):
		return auditErrInvalidEmail
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrTokenConflict):
		return auditErrTokenConflict
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDelivery
	default:
		return auditErrInternal
	}
}
