package handler

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"groundwork/internal/api/middleware"
	"groundwork/internal/database"
)

const resetTokenTTL = 24 * time.Hour

func (h *Handler) LoginPage(c *gin.Context) {
	if middleware.UserFromContext(c) != nil {
		c.Redirect(http.StatusFound, "/dashboard")
		return
	}
	h.render(c, http.StatusOK, "login.html", gin.H{
		"Next":                c.Query("next"),
		"RegistrationEnabled": h.registrationEnabled(c),
	})
}

func (h *Handler) Login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	next := c.PostForm("next")

	fail := func() {
		h.render(c, http.StatusOK, "login.html", gin.H{
			"Error":               "Invalid email or password.",
			"Email":               email,
			"Next":                next,
			"RegistrationEnabled": h.registrationEnabled(c),
		})
	}

	user, err := h.db.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Error("login lookup failed", "error", err)
		}
		fail()
		return
	}
	// Deactivated accounts fail the same way as a wrong password.
	if !user.IsActive || !user.CheckPassword(password) {
		fail()
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		log.Error("failed to save session", "error", err)
		fail()
		return
	}

	log.Info("user logged in", "user_id", user.ID, "email", user.Email)

	// A pending password rotation overrides the requested next page.
	if user.MustChangePassword {
		c.Redirect(http.StatusFound, h.cfg.ForceChangePath)
		return
	}
	c.Redirect(http.StatusFound, safeNext(next))
}

func (h *Handler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		log.Error("failed to clear session", "error", err)
	}
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) RegisterPage(c *gin.Context) {
	if !h.registrationEnabled(c) {
		h.render(c, http.StatusNotFound, "registration_closed.html", nil)
		return
	}
	h.render(c, http.StatusOK, "register.html", gin.H{})
}

func (h *Handler) Register(c *gin.Context) {
	if !h.registrationEnabled(c) {
		h.render(c, http.StatusNotFound, "registration_closed.html", nil)
		return
	}

	email := strings.ToLower(strings.TrimSpace(c.PostForm("email")))
	name := strings.TrimSpace(c.PostForm("name"))
	password1 := c.PostForm("password1")
	password2 := c.PostForm("password2")

	fail := func(message string) {
		h.render(c, http.StatusOK, "register.html", gin.H{
			"Error": message,
			"Email": email,
			"Name":  name,
		})
	}

	if _, err := mail.ParseAddress(email); err != nil {
		fail("Enter a valid email address.")
		return
	}
	if msg := validateNewPassword(password1, password2); msg != "" {
		fail(msg)
		return
	}
	if _, err := h.db.GetUserByEmail(c.Request.Context(), email); err == nil {
		fail("An account with this email already exists.")
		return
	}

	user := database.User{
		Email:    email,
		Name:     name,
		IsActive: true,
	}
	if err := user.SetPassword(password1); err != nil {
		log.Error("failed to hash password", "error", err)
		fail("Something went wrong. Please try again.")
		return
	}
	if err := h.db.CreateUser(c.Request.Context(), &user); err != nil {
		fail("Failed to create the account.")
		return
	}

	log.Info("user registered", "user_id", user.ID, "email", user.Email)
	flash(c, "success", "Account created. Please log in.")
	c.Redirect(http.StatusFound, "/login")
}

func (h *Handler) PasswordResetPage(c *gin.Context) {
	h.render(c, http.StatusOK, "password_reset_form.html", nil)
}

// PasswordReset always responds as if a reset email was sent, so the endpoint
// never reveals whether an account exists.
func (h *Handler) PasswordReset(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))

	user, err := h.db.GetUserByEmail(c.Request.Context(), email)
	if err == nil && user.IsActive {
		if err := h.sendResetEmail(c, user); err != nil {
			log.Error("failed to send password reset email", "error", err, "user_id", user.ID)
		}
	} else if err != nil && err != gorm.ErrRecordNotFound {
		log.Error("password reset lookup failed", "error", err)
	}

	c.Redirect(http.StatusFound, "/password-reset/done")
}

func (h *Handler) PasswordResetDone(c *gin.Context) {
	h.render(c, http.StatusOK, "password_reset_done.html", nil)
}

func (h *Handler) PasswordResetConfirmPage(c *gin.Context) {
	if _, err := h.db.GetValidResetToken(c.Request.Context(), c.Param("token")); err != nil {
		h.render(c, http.StatusOK, "password_reset_invalid.html", nil)
		return
	}
	h.render(c, http.StatusOK, "password_reset_confirm.html", gin.H{
		"Token": c.Param("token"),
	})
}

func (h *Handler) PasswordResetConfirm(c *gin.Context) {
	record, err := h.db.GetValidResetToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.render(c, http.StatusOK, "password_reset_invalid.html", nil)
		return
	}

	password1 := c.PostForm("password1")
	password2 := c.PostForm("password2")
	if msg := validateNewPassword(password1, password2); msg != "" {
		h.render(c, http.StatusOK, "password_reset_confirm.html", gin.H{
			"Token": c.Param("token"),
			"Error": msg,
		})
		return
	}

	user := record.User
	if err := user.SetPassword(password1); err != nil {
		log.Error("failed to hash password", "error", err)
		h.render(c, http.StatusOK, "password_reset_confirm.html", gin.H{
			"Token": c.Param("token"),
			"Error": "Something went wrong. Please try again.",
		})
		return
	}
	// Proving control of the mailbox satisfies a pending forced rotation.
	user.MustChangePassword = false
	if err := h.db.ConsumeResetToken(c.Request.Context(), record, &user); err != nil {
		h.render(c, http.StatusOK, "password_reset_confirm.html", gin.H{
			"Token": c.Param("token"),
			"Error": "Something went wrong. Please try again.",
		})
		return
	}

	c.Redirect(http.StatusFound, "/reset/done")
}

func (h *Handler) PasswordResetComplete(c *gin.Context) {
	h.render(c, http.StatusOK, "password_reset_complete.html", nil)
}

// sendResetEmail issues a token and delivers the reset link with the SMTP
// parameters resolved from the current site settings.
func (h *Handler) sendResetEmail(c *gin.Context, user *database.User) error {
	settings, err := h.db.SiteSettings(c.Request.Context())
	if err != nil {
		return err
	}
	token, err := h.db.CreatePasswordResetToken(c.Request.Context(), user.ID, resetTokenTTL)
	if err != nil {
		return err
	}
	resetURL := strings.TrimSuffix(h.cfg.ServerURL, "/") + "/reset/" + token.Token
	return h.mailer.SendPasswordResetEmail(settings, user.Email, resetURL)
}

// registrationEnabled reads the singleton flag; a broken store keeps
// registration closed.
func (h *Handler) registrationEnabled(c *gin.Context) bool {
	settings, err := h.db.SiteSettings(c.Request.Context())
	if err != nil {
		return false
	}
	return settings.RegistrationEnabled
}

func validateNewPassword(password1, password2 string) string {
	if len(password1) < 8 {
		return "Password must be at least 8 characters."
	}
	if password1 != password2 {
		return "Passwords do not match."
	}
	return ""
}
