package handler

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"groundwork/internal/api/middleware"
)

func (h *Handler) Home(c *gin.Context) {
	h.render(c, http.StatusOK, "home.html", gin.H{
		"RegistrationEnabled": h.registrationEnabled(c),
	})
}

func (h *Handler) Dashboard(c *gin.Context) {
	h.render(c, http.StatusOK, "dashboard.html", nil)
}

func (h *Handler) ProfilePage(c *gin.Context) {
	user := middleware.UserFromContext(c)
	h.render(c, http.StatusOK, "profile.html", gin.H{
		"Email": user.Email,
		"Name":  user.Name,
	})
}

func (h *Handler) Profile(c *gin.Context) {
	user := middleware.UserFromContext(c)
	email := strings.ToLower(strings.TrimSpace(c.PostForm("email")))
	name := strings.TrimSpace(c.PostForm("name"))

	fail := func(message string) {
		h.render(c, http.StatusOK, "profile.html", gin.H{
			"Error": message,
			"Email": email,
			"Name":  name,
		})
	}

	if _, err := mail.ParseAddress(email); err != nil {
		fail("Enter a valid email address.")
		return
	}
	if other, err := h.db.GetUserByEmail(c.Request.Context(), email); err == nil && other.ID != user.ID {
		fail("An account with this email already exists.")
		return
	} else if err != nil && err != gorm.ErrRecordNotFound {
		fail("Something went wrong. Please try again.")
		return
	}

	user.Email = email
	user.Name = name
	if err := h.db.SaveUser(c.Request.Context(), user); err != nil {
		fail("Failed to update the profile.")
		return
	}

	flash(c, "success", "Profile updated.")
	c.Redirect(http.StatusFound, "/profile")
}

func (h *Handler) PasswordChangePage(c *gin.Context) {
	h.render(c, http.StatusOK, "password_change.html", nil)
}

func (h *Handler) PasswordChange(c *gin.Context) {
	user := middleware.UserFromContext(c)

	fail := func(message string) {
		h.render(c, http.StatusOK, "password_change.html", gin.H{"Error": message})
	}

	if !user.CheckPassword(c.PostForm("old_password")) {
		fail("Your current password was entered incorrectly.")
		return
	}
	password1 := c.PostForm("new_password1")
	password2 := c.PostForm("new_password2")
	if msg := validateNewPassword(password1, password2); msg != "" {
		fail(msg)
		return
	}

	if err := user.SetPassword(password1); err != nil {
		log.Error("failed to hash password", "error", err)
		fail("Something went wrong. Please try again.")
		return
	}
	// The self-service form also satisfies a pending forced rotation.
	user.MustChangePassword = false
	if err := h.db.SaveUser(c.Request.Context(), user); err != nil {
		fail("Failed to change the password.")
		return
	}

	c.Redirect(http.StatusFound, "/password-change/done")
}

func (h *Handler) PasswordChangeDone(c *gin.Context) {
	h.render(c, http.StatusOK, "password_change_done.html", nil)
}

func (h *Handler) ForcePasswordChangePage(c *gin.Context) {
	user := middleware.UserFromContext(c)
	if !user.MustChangePassword {
		c.Redirect(http.StatusFound, "/dashboard")
		return
	}
	h.render(c, http.StatusOK, "force_password_change.html", nil)
}

// ForcePasswordChange completes a forced rotation: the flag is cleared and
// the session terminated, so the user has to log in with the new credential.
func (h *Handler) ForcePasswordChange(c *gin.Context) {
	user := middleware.UserFromContext(c)
	if !user.MustChangePassword {
		c.Redirect(http.StatusFound, "/dashboard")
		return
	}

	fail := func(message string) {
		h.render(c, http.StatusOK, "force_password_change.html", gin.H{"Error": message})
	}

	if !user.CheckPassword(c.PostForm("old_password")) {
		fail("Your current password was entered incorrectly.")
		return
	}
	password1 := c.PostForm("new_password1")
	password2 := c.PostForm("new_password2")
	if msg := validateNewPassword(password1, password2); msg != "" {
		fail(msg)
		return
	}

	if err := user.SetPassword(password1); err != nil {
		log.Error("failed to hash password", "error", err)
		fail("Something went wrong. Please try again.")
		return
	}
	user.MustChangePassword = false
	if err := h.db.SaveUser(c.Request.Context(), user); err != nil {
		fail("Failed to change the password.")
		return
	}

	// Drop the authenticated session but keep the cookie alive so the flash
	// message survives until the login page renders.
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		log.Error("failed to clear session", "error", err)
	}

	flash(c, "success", "Password updated. Please log in again.")
	c.Redirect(http.StatusFound, "/login")
}
