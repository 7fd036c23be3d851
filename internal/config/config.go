// Package config loads the service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"clip-drop/internal/abuse"
	"clip-drop/internal/storage"
)

// Config is the complete service configuration.
type Config struct {
	Addr           string
	Env            string
	Version        string
	LogFormat      string
	LogLevel       string
	RequestTimeout time.Duration
	TempDir        string
	CORSOrigins    []string

	StorageBackend string
	MaxUploadBytes int64

	Recaptcha RecaptchaConfig
	Email     EmailConfig
	S3        S3Config
	GCS       GCSConfig
	Drive     DriveConfig
	Manual    ManualConfig
}

type RecaptchaConfig struct {
	Secret    string
	Policy    abuse.Policy
	MinScore  float64
	VerifyURL string
	Disabled  bool
}

type EmailConfig struct {
	Enabled   bool
	Host      string
	Port      string
	User      string
	Password  string
	From      string
	Operators []string
}

type S3Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	LinkExpiry    time.Duration
}

type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	PublicBaseURL   string
	LinkExpiry      time.Duration
}

type DriveConfig struct {
	CredentialsFile string
	FolderID        string
}

type ManualConfig struct {
	TransferURL string
	LinkHosts   []string
	PendingTTL  time.Duration
	MaxPending  int
}

// JSONLogs reports whether logs should be emitted as JSON.
func (c Config) JSONLogs() bool {
	return c.LogFormat == "json" || (c.LogFormat == "" && c.Env == "production")
}

// Load reads .env (if present) and the environment, and validates the result.
func Load() (Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()
	return LoadFrom(os.Getenv)
}

// LoadFrom builds a Config from getenv and validates it.
func LoadFrom(getenv func(string) string) (Config, error) {
	v := NewValidator()
	get := func(key, def string) string { return getenvDefault(getenv, key, def) }

	cfg := Config{
		Addr:           get("CLIP_ADDR", ":8080"),
		Env:            get("CLIP_ENV", "development"),
		Version:        get("CLIP_VERSION", "dev"),
		LogFormat:      get("CLIP_LOG_FORMAT", ""),
		LogLevel:       get("CLIP_LOG_LEVEL", "info"),
		RequestTimeout: v.Duration("CLIP_REQUEST_TIMEOUT", getenv("CLIP_REQUEST_TIMEOUT"), 10*time.Minute),
		TempDir:        get("CLIP_TEMP_DIR", os.TempDir()),
		StorageBackend: strings.ToLower(get("CLIP_STORAGE_BACKEND", storage.BackendMinio)),
		CORSOrigins:    splitList(get("CLIP_CORS_ORIGINS", "*")),
	}

	v.Addr("CLIP_ADDR", cfg.Addr)
	v.Enum("CLIP_ENV", cfg.Env, []string{"development", "production", "staging", "test"})
	v.Enum("CLIP_LOG_FORMAT", cfg.LogFormat, []string{"json", "text"})
	v.Enum("CLIP_LOG_LEVEL", cfg.LogLevel, []string{"debug", "info", "warn", "error"})
	v.Enum("CLIP_STORAGE_BACKEND", cfg.StorageBackend, []string{
		storage.BackendMinio, storage.BackendGCS, storage.BackendDrive, storage.BackendEmail, storage.BackendManual,
	})
	cfg.MaxUploadBytes = v.PositiveInt("CLIP_MAX_UPLOAD_BYTES", getenv("CLIP_MAX_UPLOAD_BYTES"), storage.DefaultMaxBytes(cfg.StorageBackend))

	cfg.Recaptcha = RecaptchaConfig{
		Secret:    getenv("CLIP_RECAPTCHA_SECRET"),
		Policy:    abuse.Policy(get("CLIP_RECAPTCHA_POLICY", string(abuse.PolicyScore))),
		MinScore:  v.Fraction("CLIP_RECAPTCHA_MIN_SCORE", getenv("CLIP_RECAPTCHA_MIN_SCORE"), 0.5),
		VerifyURL: get("CLIP_RECAPTCHA_VERIFY_URL", abuse.DefaultVerifyURL),
		Disabled:  v.Bool("CLIP_RECAPTCHA_DISABLED", getenv("CLIP_RECAPTCHA_DISABLED"), false),
	}
	v.Enum("CLIP_RECAPTCHA_POLICY", string(cfg.Recaptcha.Policy), []string{string(abuse.PolicyScore), string(abuse.PolicyAny)})
	v.URL("CLIP_RECAPTCHA_VERIFY_URL", cfg.Recaptcha.VerifyURL)
	if !cfg.Recaptcha.Disabled {
		v.Required("CLIP_RECAPTCHA_SECRET", cfg.Recaptcha.Secret)
	} else if cfg.Env == "production" {
		v.AddError("CLIP_RECAPTCHA_DISABLED", "verification cannot be disabled in production")
	}

	cfg.Email = EmailConfig{
		Enabled:   v.Bool("CLIP_EMAIL_ENABLED", getenv("CLIP_EMAIL_ENABLED"), false),
		Host:      getenv("CLIP_SMTP_HOST"),
		Port:      get("CLIP_SMTP_PORT", "587"),
		User:      getenv("CLIP_SMTP_USER"),
		Password:  getenv("CLIP_SMTP_PASSWORD"),
		From:      getenv("CLIP_FROM_EMAIL"),
		Operators: splitList(getenv("CLIP_OPERATOR_EMAIL")),
	}
	if cfg.Email.From == "" {
		cfg.Email.From = cfg.Email.User
	}
	v.Port("CLIP_SMTP_PORT", cfg.Email.Port)
	v.EmailAddress("CLIP_FROM_EMAIL", cfg.Email.From)
	if len(cfg.Email.Operators) == 0 {
		v.AddError("CLIP_OPERATOR_EMAIL", "at least one operator address is required")
	}
	for _, op := range cfg.Email.Operators {
		v.EmailAddress("CLIP_OPERATOR_EMAIL", op)
	}
	if cfg.Email.Enabled {
		v.Required("CLIP_SMTP_HOST", cfg.Email.Host)
		v.Required("CLIP_FROM_EMAIL", cfg.Email.From)
	}

	linkExpiry := v.Duration("CLIP_LINK_EXPIRY", getenv("CLIP_LINK_EXPIRY"), 7*24*time.Hour)
	if linkExpiry > 7*24*time.Hour {
		v.AddError("CLIP_LINK_EXPIRY", "signed links cannot outlive 7 days")
	}

	cfg.S3 = S3Config{
		Endpoint:      getenv("CLIP_S3_ENDPOINT"),
		AccessKey:     getenv("CLIP_S3_ACCESS_KEY"),
		SecretKey:     getenv("CLIP_S3_SECRET_KEY"),
		Bucket:        get("CLIP_S3_BUCKET", "clips"),
		PublicBaseURL: getenv("CLIP_S3_PUBLIC_BASE_URL"),
		LinkExpiry:    linkExpiry,
	}
	v.URL("CLIP_S3_PUBLIC_BASE_URL", cfg.S3.PublicBaseURL)

	cfg.GCS = GCSConfig{
		Bucket:          getenv("CLIP_GCS_BUCKET"),
		CredentialsFile: getenv("CLIP_GCS_CREDENTIALS_FILE"),
		PublicBaseURL:   getenv("CLIP_GCS_PUBLIC_BASE_URL"),
		LinkExpiry:      linkExpiry,
	}
	v.URL("CLIP_GCS_PUBLIC_BASE_URL", cfg.GCS.PublicBaseURL)

	cfg.Drive = DriveConfig{
		CredentialsFile: getenv("CLIP_DRIVE_CREDENTIALS_FILE"),
		FolderID:        getenv("CLIP_DRIVE_FOLDER_ID"),
	}

	cfg.Manual = ManualConfig{
		TransferURL: get("CLIP_MANUAL_TRANSFER_URL", "https://mega.nz"),
		LinkHosts:   splitList(getenv("CLIP_MANUAL_LINK_HOSTS")),
		PendingTTL:  v.Duration("CLIP_MANUAL_PENDING_TTL", getenv("CLIP_MANUAL_PENDING_TTL"), 48*time.Hour),
		MaxPending:  int(v.PositiveInt("CLIP_MANUAL_MAX_PENDING", getenv("CLIP_MANUAL_MAX_PENDING"), 10000)),
	}
	v.URL("CLIP_MANUAL_TRANSFER_URL", cfg.Manual.TransferURL)

	// Backend specific requirements.
	switch cfg.StorageBackend {
	case storage.BackendMinio:
		v.Required("CLIP_S3_ENDPOINT", cfg.S3.Endpoint)
		v.Required("CLIP_S3_ACCESS_KEY", cfg.S3.AccessKey)
		v.Required("CLIP_S3_SECRET_KEY", cfg.S3.SecretKey)
		if strings.Contains(cfg.S3.Endpoint, "://") {
			v.URL("CLIP_S3_ENDPOINT", cfg.S3.Endpoint)
		}
	case storage.BackendGCS:
		v.Required("CLIP_GCS_BUCKET", cfg.GCS.Bucket)
	case storage.BackendDrive:
		v.Required("CLIP_DRIVE_CREDENTIALS_FILE", cfg.Drive.CredentialsFile)
		v.Required("CLIP_DRIVE_FOLDER_ID", cfg.Drive.FolderID)
	case storage.BackendEmail:
		if cfg.MaxUploadBytes > storage.DefaultMaxBytes(storage.BackendEmail) {
			v.AddError("CLIP_MAX_UPLOAD_BYTES", "email attachments are limited to 25 MiB")
		}
	}

	return cfg, v.Err()
}

// Warnings lists optional settings that are missing but recommended.
func (c Config) Warnings() []string {
	warnings := make([]string, 0)

	if !c.Email.Enabled {
		warnings = append(warnings, "CLIP_EMAIL_ENABLED not set to 'true' - notifications are only logged")
	}
	if c.Recaptcha.Disabled {
		warnings = append(warnings, "CLIP_RECAPTCHA_DISABLED is set - every submission passes the abuse check")
	}
	if c.LogFormat == "" && c.Env != "production" {
		warnings = append(warnings, "CLIP_LOG_FORMAT not set - using text format (consider 'json' for production)")
	}
	if c.StorageBackend == storage.BackendManual && len(c.Manual.LinkHosts) == 0 {
		warnings = append(warnings, "CLIP_MANUAL_LINK_HOSTS not set - links to any host are accepted")
	}
	return warnings
}

func getenvDefault(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

// splitList splits a comma separated value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
