package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"learnhub/internal/app/commands"
	convapp "learnhub/internal/app/handlers/conversations"
	msgapp "learnhub/internal/app/handlers/messages"
	"learnhub/internal/app/middleware"
	"learnhub/internal/app/policies"
	"learnhub/internal/app/queries"
	domainmessaging "learnhub/internal/domain/messaging"
	domainuser "learnhub/internal/domain/user"
)

// statusFor maps application errors to HTTP statuses. Non-participants get the
// same not-found answer as missing records.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domainmessaging.ErrEmptyMessage),
		errors.Is(err, domainmessaging.ErrTooFewParticipants),
		errors.Is(err, domainmessaging.ErrQueryTooShort),
		errors.Is(err, domainmessaging.ErrInvalidReaction),
		errors.Is(err, domainmessaging.ErrUnknownFilter),
		errors.Is(err, domainmessaging.ErrIDRequired),
		errors.Is(err, domainuser.ErrQueryTooShort),
		errors.Is(err, convapp.ErrNoFlags),
		errors.Is(err, msgapp.ErrTargetRequired),
		errors.Is(err, policies.ErrAttachmentRejected):
		return http.StatusBadRequest
	case errors.Is(err, policies.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domainmessaging.ErrConversationNotFound),
		errors.Is(err, domainmessaging.ErrMessageNotFound),
		errors.Is(err, domainmessaging.ErrParticipantUnknown),
		errors.Is(err, domainmessaging.ErrSenderNotAllowed):
		return http.StatusNotFound
	case errors.Is(err, middleware.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, policies.ErrAttachmentUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, policies.ErrDirectoryUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, commands.ErrNilBus), errors.Is(err, queries.ErrNilBus):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *slog.Logger, action string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	if logger != nil {
		fields := []any{"action", action, "status", status, "error", err, "path", c.FullPath()}
		if p, ok := currentPrincipal(c); ok {
			fields = append(fields, "user_id", p.ID)
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Debug("request rejected", fields...)
		}
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}
