package database

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User represents an account in the database. The email address doubles as
// the login identifier. Users are never hard-deleted, an admin deactivates
// them instead.
type User struct {
	gorm.Model
	Email              string  `gorm:"uniqueIndex;not null"`
	Name               string
	PasswordHash       string
	IsActive           bool    `gorm:"default:true"`
	IsStaff            bool    `gorm:"default:false"`
	MustChangePassword bool    `gorm:"default:false"`
	Groups             []Group `gorm:"many2many:user_groups;"`
}

// SetPassword hashes the plaintext password and stores the hash on the user.
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether the plaintext password matches the stored hash.
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// Group is a permission-grouping label with a many-to-many relation to users.
type Group struct {
	gorm.Model
	Name  string `gorm:"uniqueIndex;not null"`
	Users []User `gorm:"many2many:user_groups;"`
}

// siteSettingsID is the fixed primary key of the settings singleton.
const siteSettingsID = 1

// SiteSettings is the singleton configuration record. Exactly one row exists,
// identified by siteSettingsID, created lazily with defaults on first access.
type SiteSettings struct {
	ID                  uint      `gorm:"primaryKey"`
	RegistrationEnabled bool      `gorm:"default:false"`
	EmailFromName       string
	EmailFromEmail      string
	EmailHost           string
	EmailPort           int       `gorm:"default:587"`
	EmailHostUser       string
	EmailHostPassword   string
	EmailUseTLS         bool      `gorm:"default:true"`
	UpdatedAt           time.Time
}

// PasswordResetToken is a single-use, expiring token backing the
// reset-by-email flow.
type PasswordResetToken struct {
	gorm.Model
	Token     string     `gorm:"uniqueIndex;not null"`
	UserID    uint       `gorm:"not null"`
	User      User
	ExpiresAt time.Time
	UsedAt    *time.Time
}
