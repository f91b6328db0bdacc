// Package api wires the HTTP surface: session setup, middleware and routes.
package api

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/mergestat/timediff"
	"github.com/samber/lo"

	"groundwork/internal/api/handler"
	"groundwork/internal/api/middleware"
	"groundwork/internal/config"
	"groundwork/internal/database"
	"groundwork/internal/gravatar"
	"groundwork/internal/mailer"
	"groundwork/web"
)

type Server struct {
	cfg       *config.Config
	db        *database.Client
	ginEngine *gin.Engine
}

func New(cfg *config.Config, db *database.Client) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	s := &Server{
		cfg:       cfg,
		db:        db,
		ginEngine: gin.Default(),
	}
	if err := s.setupTemplates(); err != nil {
		return nil, err
	}
	s.setupSession()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupTemplates() error {
	funcs := template.FuncMap{
		// "updated 3 minutes ago" style timestamps
		"reltime": func(t time.Time) string { return timediff.TimeDiff(t) },
		"hasid":   func(ids []uint, id uint) bool { return lo.Contains(ids, id) },
		"avatar":  func(email string) string { return gravatar.URL(email, 64) },
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(web.TemplatesFS, "templates/*.html")
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}
	s.ginEngine.SetHTMLTemplate(tmpl)
	return nil
}

func (s *Server) setupSession() {
	store := cookie.NewStore([]byte(s.cfg.SessionKey))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   s.cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   s.cfg.SessionSecure,
		SameSite: http.SameSiteLaxMode,
	})
	s.ginEngine.Use(sessions.Sessions("groundwork_session", store))
}

func (s *Server) setupRoutes() {
	h := handler.New(s.cfg, s.db, mailer.New(s.cfg.Email))

	s.ginEngine.Use(middleware.LoadUser(s.db))
	s.ginEngine.Use(middleware.ForcePasswordChange(s.cfg.ForceChangePath))

	s.ginEngine.Static("/static", "./static")

	s.ginEngine.GET("/", h.Home)
	s.ginEngine.GET("/login", h.LoginPage)
	s.ginEngine.POST("/login", h.Login)
	s.ginEngine.GET("/logout", h.Logout)
	s.ginEngine.GET("/register", h.RegisterPage)
	s.ginEngine.POST("/register", h.Register)
	s.ginEngine.GET("/password-reset", h.PasswordResetPage)
	s.ginEngine.POST("/password-reset", h.PasswordReset)
	s.ginEngine.GET("/password-reset/done", h.PasswordResetDone)
	s.ginEngine.GET("/reset/done", h.PasswordResetComplete)
	s.ginEngine.GET("/reset/:token", h.PasswordResetConfirmPage)
	s.ginEngine.POST("/reset/:token", h.PasswordResetConfirm)

	protected := s.ginEngine.Group("/")
	protected.Use(middleware.RequireAuth())

	protected.GET("/dashboard", h.Dashboard)
	protected.GET("/profile", h.ProfilePage)
	protected.POST("/profile", h.Profile)
	protected.GET("/password-change", h.PasswordChangePage)
	protected.POST("/password-change", h.PasswordChange)
	protected.GET("/password-change/done", h.PasswordChangeDone)
	protected.GET(s.cfg.ForceChangePath, h.ForcePasswordChangePage)
	protected.POST(s.cfg.ForceChangePath, h.ForcePasswordChange)

	admin := s.ginEngine.Group("/admin")
	admin.Use(middleware.RequireAuth(), middleware.RequireStaff())

	admin.GET("", h.AdminSettingsPage)
	admin.GET("/settings", h.AdminSettingsPage)
	admin.POST("/settings", h.AdminSettings)
	admin.GET("/users", h.AdminUserList)
	admin.GET("/users/new", h.AdminUserCreatePage)
	admin.POST("/users/new", h.AdminUserCreate)
	admin.GET("/users/:id", h.AdminUserEditPage)
	admin.POST("/users/:id", h.AdminUserEdit)
	admin.POST("/users/:id/reset-password", h.AdminUserResetPassword)
	admin.GET("/groups", h.AdminGroupList)
	admin.GET("/groups/new", h.AdminGroupFormPage)
	admin.POST("/groups/new", h.AdminGroupSave)
	admin.GET("/groups/:id", h.AdminGroupFormPage)
	admin.POST("/groups/:id", h.AdminGroupSave)
	admin.POST("/groups/:id/delete", h.AdminGroupDelete)
}

func (s *Server) Run() error {
	return s.ginEngine.Run(s.cfg.Listen)
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.ginEngine
}
