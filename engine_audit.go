package keygate

import (
	"context"
	"time"
)

const (
	auditEventRegistrationRequest = "registration_request"
	auditEventRegistrationConfirm = "registration_confirm"
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventTokenRefresh        = "token_refresh"
	auditEventRecoveryRequest     = "recovery_request"
	auditEventRecoveryRedeem      = "recovery_redeem"
)

// AuditErrorCode is the stable, non-sensitive error label written to audit events.
type AuditErrorCode string

const (
	auditErrValidation    AuditErrorCode = "validation"
	auditErrAlreadyExists AuditErrorCode = "already_exists"
	auditErrInvalidCode   AuditErrorCode = "invalid_code"
	auditErrUserNotFound  AuditErrorCode = "user_not_found"
	auditErrWrongPassword AuditErrorCode = "wrong_password"
	auditErrTokenInvalid  AuditErrorCode = "token_invalid"
	auditErrNotification  AuditErrorCode = "notification_failed"
	auditErrUnavailable   AuditErrorCode = "unavailable"
	auditErrInternal      AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindValidation:
		return auditErrValidation
	case KindAlreadyExists:
		return auditErrAlreadyExists
	case KindInvalidCode:
		return auditErrInvalidCode
	case KindUserNotFound:
		return auditErrUserNotFound
	case KindWrongPassword:
		return auditErrWrongPassword
	case KindTokenInvalid:
		return auditErrTokenInvalid
	case KindNotification:
		return auditErrNotification
	case KindUnavailable:
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
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
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Error:     string(auditErrorCode(err)),
		Metadata:  metadata,
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) now() time.Time {
	if e != nil && e.clock != nil {
		return e.clock()
	}
	return time.Now()
}
