// Package config provides configuration management for go-easyweb.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

var AppVersion = "-unset-" // will be set at build time

const (
	// Default web settings
	DefaultListenPort        = 8080
	DefaultPublicDir         = "public"
	DefaultTemplateExtension = "html"
	DefaultBodyLimit         = 100 * 1024 // 100 KB, same as the usual body-parser default

	// Default database settings
	DefaultDatabasePath = "database.db"

	// Session defaults
	DefaultSessionCookie  = "easyweb.sid"
	DefaultSessionExpiry  = 7 * 24 * time.Hour // 1 week
	DefaultSessionCleanup = 15 * time.Minute
	SessionSecretEnvVar   = "SESSION_SECRET"
	ListenPortEnvVar      = "PORT"

	// Server timings
	ShutdownGracePeriod      = 10 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
)

// MainConfig holds the main configuration for go-easyweb
type MainConfig struct {
	Web      *WebConfig     `json:"web"`
	Database DatabaseConfig `json:"database"`
	Session  SessionConfig  `json:"session"`

	AppVersion string `json:"app_version"` // Application version, set at build time
}

// WebConfig holds web interface configuration
type WebConfig struct {
	ListenPort int    `json:"listen_port"`
	SSL        bool   `json:"ssl"`
	CertFile   string `json:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty"`
	PublicDir  string `json:"public_dir"`         // views and static files live here
	Extension  string `json:"template_extension"` // without the leading dot
	BodyLimit  int64  `json:"body_limit"`
	Debug      bool   `json:"debug"` // reparse templates on every request
	Watch      bool   `json:"watch"` // drop cached templates when files in PublicDir change
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `json:"path"` // SQLite database file

	// Connection pool settings
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`

	// Performance settings
	WALMode   bool   `json:"wal_mode"`
	SyncMode  string `json:"sync_mode"` // OFF, NORMAL, FULL
	CacheSize int    `json:"cache_size"`
	TempStore string `json:"temp_store"` // MEMORY, FILE
}

// SessionConfig holds session store configuration
type SessionConfig struct {
	Secret          string        `json:"-"`
	CookieName      string        `json:"cookie_name"`
	Expiry          time.Duration `json:"expiry"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// NewDefaultWebConfig returns the default web configuration.
// The listen port honours $PORT when it is set to a valid number.
func NewDefaultWebConfig() *WebConfig {
	port := DefaultListenPort
	if env := os.Getenv(ListenPortEnvVar); env != "" {
		if p, err := strconv.Atoi(env); err == nil && p > 0 {
			port = p
		} else {
			log.Printf("Ignoring invalid $%s value '%s'", ListenPortEnvVar, env)
		}
	}
	return &WebConfig{
		ListenPort: port,
		SSL:        false,
		PublicDir:  DefaultPublicDir,
		Extension:  DefaultTemplateExtension,
		BodyLimit:  DefaultBodyLimit,
	}
}

// NewDefaultDatabaseConfig returns the default database configuration for path.
// An empty path selects DefaultDatabasePath.
func NewDefaultDatabaseConfig(path string) DatabaseConfig {
	if path == "" {
		path = DefaultDatabasePath
	}
	return DatabaseConfig{
		Path:            path,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 0, // SQLite connections don't need to be recycled
		WALMode:         true,
		SyncMode:        "NORMAL",
		CacheSize:       -16384, // 16MB
		TempStore:       "MEMORY",
	}
}

// NewDefaultSessionConfig returns the default session configuration.
// The secret is read from $SESSION_SECRET.
func NewDefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Secret:          os.Getenv(SessionSecretEnvVar),
		CookieName:      DefaultSessionCookie,
		Expiry:          DefaultSessionExpiry,
		CleanupInterval: DefaultSessionCleanup,
	}
}

// NewDefaultConfig creates a new configuration with default values
func NewDefaultConfig() *MainConfig {
	maincfg := &MainConfig{
		AppVersion: AppVersion,
		Web:        NewDefaultWebConfig(),
		Database:   NewDefaultDatabaseConfig(""),
		Session:    NewDefaultSessionConfig(),
	}

	log.Printf("MainConfig initialized: port=%d public=%s ext=%s db=%s",
		maincfg.Web.ListenPort, maincfg.Web.PublicDir, maincfg.Web.Extension, maincfg.Database.Path)
	return maincfg
}
