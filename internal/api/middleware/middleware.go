// Package middleware holds the session-backed authentication gates and the
// forced-password-change interceptor.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"groundwork/internal/database"
)

const (
	// SessionUserKey is the session key holding the authenticated user ID.
	SessionUserKey = "user_id"
	// ContextUserKey is the gin context key holding the loaded user record.
	ContextUserKey = "user"
)

// UserFromContext returns the authenticated user loaded for this request, or
// nil for anonymous requests.
func UserFromContext(c *gin.Context) *database.User {
	if v, ok := c.Get(ContextUserKey); ok {
		if user, ok := v.(*database.User); ok {
			return user
		}
	}
	return nil
}

// LoadUser resolves the session to a fresh user record on every request.
// Sessions pointing at deactivated or vanished accounts are discarded.
func LoadUser(db *database.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, ok := session.Get(SessionUserKey).(uint)
		if !ok {
			c.Next()
			return
		}

		user, err := db.GetUserByID(c.Request.Context(), id)
		if err != nil || !user.IsActive {
			session.Clear()
			session.Options(sessions.Options{Path: "/", MaxAge: -1})
			_ = session.Save()
			c.Next()
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// RequireAuth redirects anonymous requests to the login page, preserving the
// originally requested path in the next parameter.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserFromContext(c) == nil {
			c.Redirect(http.StatusFound, "/login?next="+c.Request.URL.Path)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireStaff denies non-staff principals with a generic forbidden page.
// It must run behind RequireAuth.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := UserFromContext(c)
		if user == nil || !user.IsStaff {
			c.HTML(http.StatusForbidden, "forbidden.html", gin.H{})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ForcePasswordChange intercepts every authenticated request of a user whose
// password rotation is pending and redirects it to the forced-change route.
// The forced-change route itself, logout and static assets stay reachable.
func ForcePasswordChange(forceChangePath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := UserFromContext(c)
		if user == nil || !user.MustChangePassword {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		if path == forceChangePath || path == "/logout" || strings.HasPrefix(path, "/static/") {
			c.Next()
			return
		}

		c.Redirect(http.StatusFound, forceChangePath)
		c.Abort()
	}
}
