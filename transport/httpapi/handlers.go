package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/plextask/keygate"
	"github.com/plextask/keygate/middleware"
)

const (
	msgRegisterSent     = "Please check your email for confirmation with code"
	msgRegistered       = "Registration successfully."
	msgWrongCode        = "Wrong code."
	msgLoggedOut        = "User logged out successfully."
	msgRecoverySent     = "We sent you a password recovery code."
	msgPasswordChanged  = "Password successfully changed."
	msgRequired         = "This field is required."
	msgUserNotExist     = "User does not exist."
	msgWrongPassword    = "Wrong password."
	msgEmailNotExist    = "User with this email does not exist."
	msgInvalidCreds     = "Invalid credentials."
	msgRefreshMissing   = "Refresh token is missing in cookies"
	msgRefreshInvalid   = "Token is invalid or expired"
	msgMalformedRequest = "Malformed request body."
	msgNegativeTime     = "Ensure this value is greater than or equal to 0."
)

type registerRequest struct {
	Nickname        string `json:"nickname"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type codeRequest struct {
	Code codeValue `json:"code"`
}

type loginRequest struct {
	Nickname  string `json:"nickname"`
	Password  string `json:"password"`
	TokenTime int    `json:"token_time"`
}

type recoveryRequest struct {
	Email string `json:"email"`
}

type passwordRecoveryRequest struct {
	Code            codeValue `json:"code"`
	Password        string    `json:"password"`
	ConfirmPassword string    `json:"confirm_password"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("message", msgMalformedRequest))
		return
	}

	_, err := s.svc.Register(requestContext(c), keygate.RegistrationRequest{
		Nickname:        req.Nickname,
		DisplayName:     req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		s.fail(c, "register", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgRegisterSent})
}

func (s *Server) registerConfirm(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("message", msgWrongCode))
		return
	}

	if _, err := s.svc.ConfirmRegistration(requestContext(c), int(req.Code)); err != nil {
		s.fail(c, "register-confirm", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgRegistered})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("message", msgMalformedRequest))
		return
	}
	if strings.TrimSpace(req.Nickname) == "" {
		c.JSON(http.StatusNotFound, errorBody("nickname", msgRequired))
		return
	}
	if req.Password == "" {
		c.JSON(http.StatusBadRequest, errorBody("password", msgRequired))
		return
	}
	if req.TokenTime < 0 {
		c.JSON(http.StatusBadRequest, errorBody("token_time", msgNegativeTime))
		return
	}

	result, err := s.svc.Authenticate(requestContext(c), req.Nickname, req.Password)
	if err != nil {
		s.fail(c, "login", err)
		return
	}

	tokenTime := s.cookieLifetime(req.TokenTime)
	s.setRefreshCookie(c, result.Tokens.RefreshToken, tokenTime)
	c.JSON(http.StatusOK, gin.H{
		"access_token": result.Tokens.AccessToken,
		"user": gin.H{
			"username":           result.Account.DisplayName,
			"nickname":           result.Account.Nickname,
			"pk":                 result.Account.ID,
			"email":              result.Account.Email,
			"refresh_token_time": tokenTime,
		},
	})
}

// logout only drops the cookie; issued tokens stay valid until expiry.
func (s *Server) logout(c *gin.Context) {
	s.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": msgLoggedOut})
}

func (s *Server) refresh(c *gin.Context) {
	token, err := c.Cookie(refreshCookie)
	if err != nil || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgRefreshMissing})
		return
	}

	access, err := s.svc.Refresh(requestContext(c), token)
	if err != nil {
		if keygate.KindOf(err) == keygate.KindTokenInvalid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": msgRefreshInvalid})
			return
		}
		s.fail(c, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access.Token})
}

func (s *Server) requestRecovery(c *gin.Context) {
	var req recoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("message", msgMalformedRequest))
		return
	}

	if _, err := s.svc.RequestRecovery(requestContext(c), req.Email); err != nil {
		if keygate.KindOf(err) == keygate.KindUserNotFound {
			c.JSON(http.StatusBadRequest, errorBody("email", msgEmailNotExist))
			return
		}
		s.fail(c, "request-password-recovery", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgRecoverySent})
}

func (s *Server) passwordRecovery(c *gin.Context) {
	var req passwordRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("message", msgWrongCode))
		return
	}

	_, err := s.svc.RedeemRecovery(requestContext(c), int(req.Code), req.Password, req.ConfirmPassword)
	if err != nil {
		s.fail(c, "password-recovery", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgPasswordChanged})
}

func (s *Server) session(c *gin.Context) {
	p, ok := middleware.PrincipalFromGin(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_id": p.AccountID,
		"expires_at": p.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) healthz(c *gin.Context) {
	if s.opts.Health != nil {
		if err := s.opts.Health(c.Request.Context()); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// cookieLifetime caps the requested refresh cookie lifetime in seconds at
// the refresh token TTL. Zero keeps a session cookie.
func (s *Server) cookieLifetime(requested int) int {
	limit := int(s.svc.RefreshTTL() / time.Second)
	if requested > limit {
		return limit
	}
	return requested
}
