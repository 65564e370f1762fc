package httpapi

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const refreshCookie = "refreshToken"

// setRefreshCookie stores token for maxAge seconds; zero means a session
// cookie.
func (s *Server) setRefreshCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookie, token, maxAge, "/", "", !s.opts.InsecureCookies, true)
}

func (s *Server) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookie, "", -1, "/", "", !s.opts.InsecureCookies, true)
}

// codeValue accepts a code sent either as a JSON number or as a string of
// digits. Anything else decodes to zero, which no issued code equals.
type codeValue int

func (v *codeValue) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	n, err := strconv.Atoi(string(data))
	if err != nil {
		*v = 0
		return nil
	}
	*v = codeValue(n)
	return nil
}
