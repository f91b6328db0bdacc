package config

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config holds the configuration for the groundwork server and its dependencies.
type Config struct {
	// Listen is the address the server will listen on.
	Listen string `yaml:"listen" mapstructure:"listen"`
	// ServerURL is the base URL of the server, used to build absolute links in emails.
	ServerURL string `yaml:"server_url" mapstructure:"server_url"`
	// LogLevel controls the log verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// SessionKey is the key used to authenticate session cookies.
	SessionKey string `yaml:"session_key" mapstructure:"session_key"`
	// SessionMaxAge is the maximum age of a session in seconds.
	SessionMaxAge int `yaml:"session_max_age" mapstructure:"session_max_age"`
	// SessionSecure marks the session cookie as secure (HTTPS only).
	SessionSecure bool `yaml:"session_secure" mapstructure:"session_secure"`
	// ForceChangePath is the route flagged users are redirected to until they
	// rotate their password. The interception middleware exempts it.
	ForceChangePath string `yaml:"force_change_path" mapstructure:"force_change_path"`
	// Database holds the database configuration.
	Database *DatabaseConfig `yaml:"database" mapstructure:"database"`
	// Email holds the process-wide default SMTP configuration. Persisted site
	// settings may override it at runtime.
	Email *EmailConfig `yaml:"email" mapstructure:"email"`
	// Admin holds the initial admin bootstrap configuration.
	Admin *AdminConfig `yaml:"admin" mapstructure:"admin"`
}

// DatabaseConfig holds the database configuration.
type DatabaseConfig struct {
	// Path is the path to the sqlite database file.
	Path string `yaml:"path" mapstructure:"path"`
}

// EmailConfig holds the default SMTP configuration.
type EmailConfig struct {
	// Host is the SMTP server host.
	Host string `yaml:"host" mapstructure:"host"`
	// Port is the SMTP server port.
	Port int `yaml:"port" mapstructure:"port"`
	// Username is the SMTP username.
	Username string `yaml:"username" mapstructure:"username"`
	// Password is the SMTP password.
	Password string `yaml:"password" mapstructure:"password"`
	// UseTLS enables STARTTLS for the SMTP connection.
	UseTLS bool `yaml:"use_tls" mapstructure:"use_tls"`
	// FromEmail is the default From address for outbound mail.
	FromEmail string `yaml:"from_email" mapstructure:"from_email"`
}

// AdminConfig holds the initial admin bootstrap configuration.
// Bootstrap is opt-in: it does nothing unless email and password are set.
type AdminConfig struct {
	// Email is the login address of the initial admin account.
	Email string `yaml:"email" mapstructure:"email"`
	// Password is the initial admin password.
	Password string `yaml:"password" mapstructure:"password"`
	// Name is the display name of the initial admin account.
	Name string `yaml:"name" mapstructure:"name"`
	// ForcePasswordReset makes the created or reset admin rotate the password
	// on first login.
	ForcePasswordReset bool `yaml:"force_password_reset" mapstructure:"force_password_reset"`
	// ResetExisting overwrites the password of an existing account with the
	// configured email even when an admin already exists.
	ResetExisting bool `yaml:"reset_existing" mapstructure:"reset_existing"`
}

// Load reads the configuration from the specified path and returns a Config struct.
// If path is empty, it will use default search paths for config files.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("GROUNDWORK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.groundwork")
		v.AddConfigPath("/etc/groundwork")
	}

	if err := v.ReadInConfig(); err != nil {
		// Running purely from env vars and defaults is fine.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Debug("Using config file", "file", v.ConfigFileUsed())
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&c); err != nil {
		return nil, err
	}

	return &c, nil
}

// setDefaults sets default values for the configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "0.0.0.0:8000")
	v.SetDefault("server_url", "http://localhost:8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("session_max_age", 172800) // 48 hours
	v.SetDefault("session_secure", false)
	v.SetDefault("force_change_path", "/force-password-change")

	v.SetDefault("database.path", "groundwork.db")

	v.SetDefault("email.host", "")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.use_tls", true)
	v.SetDefault("email.from_email", "no-reply@example.com")

	v.SetDefault("admin.force_password_reset", true)
	v.SetDefault("admin.reset_existing", false)
}

// validateConfig validates the configuration.
func validateConfig(c *Config) error {
	if c.SessionKey == "" {
		return fmt.Errorf("session_key is required")
	}
	if c.Database == nil || c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Email == nil {
		return fmt.Errorf("missing email config")
	}
	if c.Email.FromEmail == "" {
		return fmt.Errorf("email from address is required")
	}
	if c.Admin == nil {
		c.Admin = &AdminConfig{ForcePasswordReset: true}
	}
	if !strings.HasPrefix(c.ForceChangePath, "/") {
		return fmt.Errorf("force_change_path must start with /")
	}
	return nil
}
