package handler

import (
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"groundwork/internal/api/middleware"
	"groundwork/internal/database"
)

func (h *Handler) AdminSettingsPage(c *gin.Context) {
	settings, err := h.db.SiteSettings(c.Request.Context())
	if err != nil {
		h.render(c, http.StatusInternalServerError, "error.html", nil)
		return
	}
	h.render(c, http.StatusOK, "admin_settings.html", gin.H{"Settings": settings})
}

// AdminSettings persists the settings form. The "test" action additionally
// sends a probe email to the acting admin, optionally with a one-off password
// override that is never stored.
func (h *Handler) AdminSettings(c *gin.Context) {
	settings, err := h.db.SiteSettings(c.Request.Context())
	if err != nil {
		h.render(c, http.StatusInternalServerError, "error.html", nil)
		return
	}

	port, err := strconv.Atoi(c.PostForm("email_port"))
	if err != nil || port < 1 || port > 65535 {
		h.render(c, http.StatusOK, "admin_settings.html", gin.H{
			"Settings": settings,
			"Error":    "Enter a valid SMTP port.",
		})
		return
	}

	settings.RegistrationEnabled = c.PostForm("registration_enabled") != ""
	settings.EmailFromName = strings.TrimSpace(c.PostForm("email_from_name"))
	settings.EmailFromEmail = strings.TrimSpace(c.PostForm("email_from_email"))
	settings.EmailHost = strings.TrimSpace(c.PostForm("email_host"))
	settings.EmailPort = port
	settings.EmailHostUser = strings.TrimSpace(c.PostForm("email_host_user"))
	settings.EmailUseTLS = c.PostForm("email_use_tls") != ""
	// A blank password field keeps the stored secret.
	if password := c.PostForm("email_host_password"); password != "" {
		settings.EmailHostPassword = password
	}

	if err := h.db.SaveSiteSettings(c.Request.Context(), settings); err != nil {
		h.render(c, http.StatusOK, "admin_settings.html", gin.H{
			"Settings": settings,
			"Error":    "Failed to save the settings.",
		})
		return
	}

	if c.PostForm("action") == "test" {
		admin := middleware.UserFromContext(c)
		if err := h.mailer.SendTestEmail(settings, admin.Email, c.PostForm("test_password")); err != nil {
			log.Error("test email failed", "error", err)
			flash(c, "error", "Test email failed. Check the SMTP settings and logs.")
		} else {
			flash(c, "success", "Test email sent.")
		}
	} else {
		flash(c, "success", "Settings updated.")
	}

	c.Redirect(http.StatusFound, "/admin/settings")
}

func (h *Handler) AdminUserList(c *gin.Context) {
	query, page := paginationFromRequest(c)
	users, total, err := h.db.ListUsers(c.Request.Context(), query, page, pageSize)
	if err != nil {
		h.render(c, http.StatusInternalServerError, "error.html", nil)
		return
	}

	data := gin.H{
		"Users":      users,
		"Pagination": Pagination{Page: page, PerPage: pageSize, Total: total, Query: query},
	}
	if isPartial(c) {
		h.render(c, http.StatusOK, "admin_user_table.html", data)
		return
	}
	h.render(c, http.StatusOK, "admin_users.html", data)
}

func (h *Handler) AdminUserCreatePage(c *gin.Context) {
	groups, err := h.db.ListAllGroups(c.Request.Context())
	if err != nil {
		h.render(c, http.StatusInternalServerError, "error.html", nil)
		return
	}
	h.render(c, http.StatusOK, "admin_user_create.html", gin.H{
		"Groups": groups,
		"Form": gin.H{
			"IsActive":           true,
			"MustChangePassword": true,
		},
	})
}

func (h *Handler) AdminUserCreate(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.PostForm("email")))
	name := strings.TrimSpace(c.PostForm("name"))
	isActive := c.PostForm("is_active") != ""
	isStaff := c.PostForm("is_staff") != ""
	mustChange := c.PostForm("must_change_password") != ""
	groupIDs := formGroupIDs(c)

	fail := func(message string) {
		groups, _ := h.db.ListAllGroups(c.Request.Context())
		h.render(c, http.StatusOK, "admin_user_create.html", gin.H{
			"Error":  message,
			"Groups": groups,
			"Form": gin.H{
				"Email":              email,
				"Name":               name,
				"IsActive":           isActive,
				"IsStaff":            isStaff,
				"MustChangePassword": mustChange,
				"GroupIDs":           groupIDs,
			},
		})
	}

	if _, err := mail.ParseAddress(email); err != nil {
		fail("Enter a valid email address.")
		return
	}
	if msg := validateNewPassword(c.PostForm("password1"), c.PostForm("password2")); msg != "" {
		fail(msg)
		return
	}
	if _, err := h.db.GetUserByEmail(c.Request.Context(), email); err == nil {
		fail("An account with this email already exists.")
		return
	}

	groups, err := h.db.GetGroupsByIDs(c.Request.Context(), groupIDs)
	if err != nil {
		fail("Something went wrong. Please try again.")
		return
	}

	user := database.User{
		Email:              email,
		Name:               name,
		IsActive:           isActive,
		IsStaff:            isStaff,
		MustChangePassword: mustChange,
		Groups:             groups,
	}
	if err := user.SetPassword(c.PostForm("password1")); err != nil {
		log.Error("failed to hash password", "error", err)
		fail("Something went wrong. Please try again.")
		return
	}
	if err := h.db.CreateUser(c.Request.Context(), &user); err != nil {
		fail("Failed to create the user.")
		return
	}

	flash(c, "success", "User created.")
	c.Redirect(http.StatusFound, "/admin/users/"+strconv.FormatUint(uint64(user.ID), 10))
}

func (h *Handler) AdminUserEditPage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		h.notFound(c)
		return
	}
	user, err := h.db.GetUserByID(c.Request.Context(), id)
	if err != nil {
		h.notFound(c)
		return
	}
	groups, err := h.db.ListAllGroups(c.Request.Context())
	if err != nil {
		h.render(c, http.StatusInternalServerError, "error.html", nil)
		return
	}
	h.render(c, http.StatusOK, "admin_user_edit.html", gin.H{
		"Target":   user,
		"Groups":   groups,
		"GroupIDs": userGroupIDs(user),
	})
}

// AdminUserEdit applies an admin edit as one validate-then-commit unit: the
// last-admin check runs in the same transaction as the write, and a rejected
// edit leaves the record untouched.
func (h *Handler) AdminUserEdit(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		h.notFound(c)
		return
	}
	user, err := h.db.GetUserByID(c.Request.Context(), id)
	if err != nil {
		h.notFound(c)
		return
	}

	email := strings.ToLower(strings.TrimSpace(c.PostForm("email")))
	name := strings.TrimSpace(c.PostForm("name"))
	isActive := c.PostForm("is_active") != ""
	isStaff := c.PostForm("is_staff") != ""
	groupIDs := formGroupIDs(c)

	fail := func(message string) {
		groups, _ := h.db.ListAllGroups(c.Request.Context())
		h.render(c, http.StatusOK, "admin_user_edit.html", gin.H{
			"Error":    message,
			"Target":   user,
			"Groups":   groups,
			"GroupIDs": groupIDs,
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

	groups, err := h.db.GetGroupsByIDs(c.Request.Context(), groupIDs)
	if err != nil {
		fail("Something went wrong. Please try again.")
		return
	}

	user.Email = email
	user.Name = name
	user.IsActive = isActive
	user.IsStaff = isStaff

	if err := h.db.UpdateUserGuarded(c.Request.Context(), user, groups); err != nil {
		if errors.Is(err, database.ErrLastAdmin) {
			fail("This is the last admin. Assign another admin first.")
			return
		}
		fail("Failed to update the user.")
		return
	}

	flash(c, "success", "User updated.")
	c.Redirect(http.StatusFound, "/admin/users")
}

// AdminUserResetPassword sends the user a reset email instead of flipping the
// forced-change flag: a reset link requires the user to prove control of the
// mailbox first.
func (h *Handler) AdminUserResetPassword(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		h.notFound(c)
		return
	}
	user, err := h.db.GetUserByID(c.Request.Context(), id)
	if err != nil {
		h.notFound(c)
		return
	}

	if err := h.sendResetEmail(c, user); err != nil {
		log.Error("failed to send reset email", "error", err, "user_id", user.ID)
		flash(c, "error", "Unable to send the reset email.")
	} else {
		flash(c, "success", "Password reset email sent.")
	}
	c.Redirect(http.StatusFound, "/admin/users/"+strconv.FormatUint(uint64(user.ID), 10))
}

func (h *Handler) AdminGroupList(c *gin.Context) {
	query, page := paginationFromRequest(c)
	groups, total, err := h.db.ListGroups(c.Request.Context(), query, page, pageSize)
	if err != nil {
		h.render(c, http.StatusInternalServerError, "error.html", nil)
		return
	}

	data := gin.H{
		"Groups":     groups,
		"Pagination": Pagination{Page: page, PerPage: pageSize, Total: total, Query: query},
	}
	if isPartial(c) {
		h.render(c, http.StatusOK, "admin_group_table.html", data)
		return
	}
	h.render(c, http.StatusOK, "admin_groups.html", data)
}

func (h *Handler) AdminGroupFormPage(c *gin.Context) {
	var group *database.Group
	if c.Param("id") != "" {
		id, ok := idParam(c)
		if !ok {
			h.notFound(c)
			return
		}
		var err error
		group, err = h.db.GetGroupByID(c.Request.Context(), id)
		if err != nil {
			h.notFound(c)
			return
		}
	}
	h.render(c, http.StatusOK, "admin_group_form.html", gin.H{"Group": group})
}

func (h *Handler) AdminGroupSave(c *gin.Context) {
	var group *database.Group
	if c.Param("id") != "" {
		id, ok := idParam(c)
		if !ok {
			h.notFound(c)
			return
		}
		var err error
		group, err = h.db.GetGroupByID(c.Request.Context(), id)
		if err != nil {
			h.notFound(c)
			return
		}
	} else {
		group = &database.Group{}
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		h.render(c, http.StatusOK, "admin_group_form.html", gin.H{
			"Group": group,
			"Error": "Enter a group name.",
		})
		return
	}

	group.Name = name
	if err := h.db.SaveGroup(c.Request.Context(), group); err != nil {
		h.render(c, http.StatusOK, "admin_group_form.html", gin.H{
			"Group": group,
			"Error": "Failed to save the group. The name may already be taken.",
		})
		return
	}

	flash(c, "success", "Group saved.")
	c.Redirect(http.StatusFound, "/admin/groups")
}

func (h *Handler) AdminGroupDelete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		h.notFound(c)
		return
	}
	if _, err := h.db.GetGroupByID(c.Request.Context(), id); err != nil {
		h.notFound(c)
		return
	}
	if err := h.db.DeleteGroup(c.Request.Context(), id); err != nil {
		flash(c, "error", "Failed to delete the group.")
	} else {
		flash(c, "success", "Group deleted.")
	}
	c.Redirect(http.StatusFound, "/admin/groups")
}

// formGroupIDs parses the selected group membership checkboxes.
func formGroupIDs(c *gin.Context) []uint {
	return lo.FilterMap(c.PostFormArray("groups"), func(raw string, _ int) (uint, bool) {
		id, err := strconv.ParseUint(raw, 10, 32)
		return uint(id), err == nil
	})
}

func userGroupIDs(user *database.User) []uint {
	return lo.Map(user.Groups, func(g database.Group, _ int) uint { return g.ID })
}
