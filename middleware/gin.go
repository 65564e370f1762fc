package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/plextask/keygate"
)

// PrincipalKey is the gin context key under which Gin stores the principal.
const PrincipalKey = "keygate.principal"

// Gin is Guard for gin routers. It aborts with 401 and a JSON body.
func Gin(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := authenticate(v, c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided or are invalid."})
			return
		}
		c.Set(PrincipalKey, p)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// PrincipalFromGin returns the principal stored by Gin.
func PrincipalFromGin(c *gin.Context) (keygate.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return keygate.Principal{}, false
	}
	p, ok := v.(keygate.Principal)
	return p, ok
}
