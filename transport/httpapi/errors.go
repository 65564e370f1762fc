package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/plextask/keygate"
)

const (
	msgUnavailable  = "Service temporarily unavailable."
	msgNotification = "Could not send the code. Try again later."
	msgInternal     = "Internal server error."
)

func errorBody(field, msg string) gin.H {
	return gin.H{"errors": gin.H{field: msg}}
}

// fail writes the response for a workflow error.
func (s *Server) fail(c *gin.Context, op string, err error) {
	switch keygate.KindOf(err) {
	case keygate.KindValidation:
		var verr *keygate.ValidationError
		if errors.As(err, &verr) && len(verr.Fields) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Fields})
			return
		}
		c.JSON(http.StatusBadRequest, errorBody("message", err.Error()))

	case keygate.KindAlreadyExists:
		var cerr *keygate.ConflictError
		if errors.As(err, &cerr) {
			c.JSON(http.StatusBadRequest, errorBody("message", cerr.Message()))
			return
		}
		c.JSON(http.StatusBadRequest, errorBody("message", err.Error()))

	case keygate.KindInvalidCode:
		c.JSON(http.StatusBadRequest, errorBody("message", msgWrongCode))

	case keygate.KindUserNotFound, keygate.KindWrongPassword:
		s.credentialFailure(c, err)

	case keygate.KindTokenInvalid:
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgRefreshInvalid})

	case keygate.KindNotification:
		s.log.Warn("code delivery failed", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("message", msgNotification))

	case keygate.KindUnavailable:
		s.log.Error("backend unavailable", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, errorBody("message", msgUnavailable))

	default:
		s.log.Error("unexpected error", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("message", msgInternal))
	}
}

func (s *Server) credentialFailure(c *gin.Context, err error) {
	if s.opts.MaskCredentialErrors {
		c.JSON(http.StatusUnauthorized, errorBody("error", msgInvalidCreds))
		return
	}
	if errors.Is(err, keygate.ErrWrongPassword) {
		c.JSON(http.StatusNotFound, errorBody("password", msgWrongPassword))
		return
	}
	c.JSON(http.StatusNotFound, errorBody("nickname", msgUserNotExist))
}
