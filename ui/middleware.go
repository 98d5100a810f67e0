package ui

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"logitdash/internal/errors"
	"logitdash/internal/session"
)

const sessionKey = "session"

// sessionMiddleware resolves the session cookie, starting a new session
// when the cookie is missing or the session expired.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := c.Cookie(s.config.CookieName)
		sess, created, err := s.sessions.GetOrCreate(raw)
		if err != nil {
			s.log.Error("[Session] cannot start session: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errors.UserMessage(err)})
			return
		}
		if created {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(s.config.CookieName, sess.ID.String(), s.config.CookieMaxAge, "/", "", false, true)
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}
