// Package handler contains the view handlers for the public pages, the
// account area and the staff-only admin panel.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"groundwork/internal/api/middleware"
	"groundwork/internal/config"
	"groundwork/internal/database"
	"groundwork/internal/mailer"
)

const pageSize = 25

type Handler struct {
	cfg    *config.Config
	db     *database.Client
	mailer *mailer.Mailer
}

func New(cfg *config.Config, db *database.Client, m *mailer.Mailer) *Handler {
	return &Handler{
		cfg:    cfg,
		db:     db,
		mailer: m,
	}
}

// render merges the request-scoped template data (current user, flash
// messages) into the handler-provided data and renders the named template.
func (h *Handler) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if _, ok := data["User"]; !ok {
		data["User"] = middleware.UserFromContext(c)
	}

	session := sessions.Default(c)
	successes := session.Flashes("success")
	errors := session.Flashes("error")
	if len(successes) > 0 || len(errors) > 0 {
		_ = session.Save()
	}
	data["FlashSuccesses"] = successes
	data["FlashErrors"] = errors

	c.HTML(status, name, data)
}

func flash(c *gin.Context, kind, message string) {
	session := sessions.Default(c)
	session.AddFlash(message, kind)
	_ = session.Save()
}

func (h *Handler) notFound(c *gin.Context) {
	h.render(c, http.StatusNotFound, "not_found.html", nil)
}

// idParam parses the numeric :id route parameter.
func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// safeNext keeps post-login redirects on-site. Browsers normalize "/\" to
// "//", so a second slash or backslash would make the path protocol-relative.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") {
		return "/dashboard"
	}
	if len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return "/dashboard"
	}
	return next
}

// Pagination describes one page of a searchable listing.
type Pagination struct {
	Page    int
	PerPage int
	Total   int64
	Query   string
}

func paginationFromRequest(c *gin.Context) (query string, page int) {
	query = strings.TrimSpace(c.Query("q"))
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	return query, page
}

func (p Pagination) TotalPages() int {
	pages := int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
	if pages < 1 {
		pages = 1
	}
	return pages
}

func (p Pagination) HasPrev() bool { return p.Page > 1 }
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages() }
func (p Pagination) Prev() int     { return p.Page - 1 }
func (p Pagination) Next() int     { return p.Page + 1 }

// isPartial reports whether the client asked for an incremental table update
// instead of a full page render.
func isPartial(c *gin.Context) bool {
	return c.GetHeader("HX-Request") != ""
}
