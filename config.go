package goReset

import (
	"errors"
	"net/url"
	"text/template"
	"time"
)

// Config is the complete engine configuration. Start from DefaultConfig or
// LoadConfig and adjust before handing it to Builder.WithConfig.
type Config struct {
	Token     TokenConfig     `envPrefix:"TOKEN_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Response  ResponseConfig  `envPrefix:"RESPONSE_"`
	Timeouts  TimeoutsConfig  `envPrefix:"TIMEOUT_"`
	Password  PasswordConfig  `envPrefix:"PASSWORD_"`
	Mail      MailConfig      `envPrefix:"MAIL_"`
	Audit     AuditConfig     `envPrefix:"AUDIT_"`
	Metrics   MetricsConfig   `envPrefix:"METRICS_"`
	Security  SecurityConfig  `envPrefix:"SECURITY_"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls reset token generation and retention.
type TokenConfig struct {
	TTL   time.Duration `env:"TTL"`
	Bytes int           `env:"BYTES"`
	// FingerprintKey switches stored fingerprints to HMAC-SHA256 under this
	// key. Leave empty for plain SHA-256.
	FingerprintKey string        `env:"FINGERPRINT_KEY,unset"`
	Retention      time.Duration `env:"RETENTION"`
	RedisPrefix    string        `env:"REDIS_PREFIX"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the sliding-window thresholds for every limiter the
// engine consults.
type RateLimitConfig struct {
	MaxRequests int           `env:"MAX_REQUESTS"`
	Window      time.Duration `env:"WINDOW"`

	EnableIdentityThrottle bool          `env:"IDENTITY_ENABLED"`
	IdentityMaxRequests    int           `env:"IDENTITY_MAX_REQUESTS"`
	IdentityWindow         time.Duration `env:"IDENTITY_WINDOW"`

	// RedeemMaxRequests of 0 disables the redemption throttle.
	RedeemMaxRequests int           `env:"REDEEM_MAX_REQUESTS"`
	RedeemWindow      time.Duration `env:"REDEEM_WINDOW"`

	FailOpen      bool          `env:"FAIL_OPEN"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL"`
	RedisPrefix   string        `env:"REDIS_PREFIX"`
}

/*
====================================
RESPONSE CONFIG
====================================
*/

// ResponseConfig holds the minimum wall-clock durations of each operation.
type ResponseConfig struct {
	MinResponseFloor time.Duration `env:"MIN_FLOOR"`
	RedeemFloor      time.Duration `env:"REDEEM_FLOOR"`
}

// TimeoutsConfig bounds every call to an external dependency.
type TimeoutsConfig struct {
	Limiter time.Duration `env:"LIMITER"`
	Store   time.Duration `env:"STORE"`
	Mail    time.Duration `env:"MAIL"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures the default argon2id hasher and the length
// policy applied to new passwords.
type PasswordConfig struct {
	Memory      uint32 `env:"MEMORY_KB"`
	Time        uint32 `env:"TIME"`
	Parallelism uint8  `env:"PARALLELISM"`
	SaltLength  uint32 `env:"SALT_LENGTH"`
	KeyLength   uint32 `env:"KEY_LENGTH"`
	MinLength   int    `env:"MIN_LENGTH"`
	MaxLength   int    `env:"MAX_LENGTH"`
}

/*
====================================
MAIL CONFIG
====================================
*/

// MailConfig controls the reset email. BodyTemplate is a text/template
// receiving MailData.
type MailConfig struct {
	ResetURL     string `env:"RESET_URL"`
	Subject      string `env:"SUBJECT"`
	BodyTemplate string `env:"BODY_TEMPLATE"`
}

// MailData is passed to MailConfig.BodyTemplate.
type MailData struct {
	Link string
	TTL  time.Duration
}

const defaultBodyTemplate = `We received a request to reset the password for your account.

Open the link below within {{.TTL}} to choose a new password:

{{.Link}}

If you did not ask for this, ignore this email. Your password will not change.
`

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

// SecurityConfig holds deployment-level switches.
type SecurityConfig struct {
	// ProductionMode tightens validation: https links, fail-closed limiters
	// and a response floor covering the worst-case request latency.
	ProductionMode bool `env:"PRODUCTION_MODE"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL:         15 * time.Minute,
			Bytes:       32,
			Retention:   24 * time.Hour,
			RedisPrefix: "rst",
		},
		RateLimit: RateLimitConfig{
			MaxRequests:            5,
			Window:                 time.Hour,
			EnableIdentityThrottle: false,
			IdentityMaxRequests:    3,
			IdentityWindow:         time.Hour,
			RedeemMaxRequests:      20,
			RedeemWindow:           15 * time.Minute,
			FailOpen:               false,
			SweepInterval:          time.Minute,
			RedisPrefix:            "rrl",
		},
		Response: ResponseConfig{
			MinResponseFloor: 500 * time.Millisecond,
			RedeemFloor:      0,
		},
		Timeouts: TimeoutsConfig{
			Limiter: 25 * time.Millisecond,
			Store:   75 * time.Millisecond,
			Mail:    250 * time.Millisecond,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
			MaxLength:   1024,
		},
		Mail: MailConfig{
			ResetURL:     "http://localhost:8080/password/reset",
			Subject:      "Reset your password",
			BodyTemplate: defaultBodyTemplate,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode: false,
		},
	}
}

// WorstCaseRequestLatency sums the dependency timeouts on the slowest
// RequestReset branch: limiter checks, account lookup, token issue and mail.
func (c *Config) WorstCaseRequestLatency() time.Duration {
	limiter := c.Timeouts.Limiter
	if c.RateLimit.EnableIdentityThrottle {
		limiter *= 2
	}
	return limiter + 2*c.Timeouts.Store + c.Timeouts.Mail
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Token
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if c.Token.TTL > 24*time.Hour {
		return errors.New("Token TTL must be <= 24h")
	}
	if c.Token.Bytes < 16 {
		return errors.New("Token Bytes must be >= 16")
	}
	if c.Token.Retention < 0 {
		return errors.New("Token Retention must be >= 0")
	}

	// Rate limits
	if c.RateLimit.MaxRequests <= 0 {
		return errors.New("RateLimit MaxRequests must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be > 0")
	}
	if c.RateLimit.EnableIdentityThrottle {
		if c.RateLimit.IdentityMaxRequests <= 0 {
			return errors.New("RateLimit IdentityMaxRequests must be > 0 when EnableIdentityThrottle is true")
		}
		if c.RateLimit.IdentityWindow <= 0 {
			return errors.New("RateLimit IdentityWindow must be > 0 when EnableIdentityThrottle is true")
		}
	}
	if c.RateLimit.RedeemMaxRequests < 0 {
		return errors.New("RateLimit RedeemMaxRequests must be >= 0")
	}
	if c.RateLimit.RedeemMaxRequests > 0 && c.RateLimit.RedeemWindow <= 0 {
		return errors.New("RateLimit RedeemWindow must be > 0 when RedeemMaxRequests is set")
	}
	if c.RateLimit.SweepInterval < 0 {
		return errors.New("RateLimit SweepInterval must be >= 0")
	}

	// Response and timeouts
	if c.Response.MinResponseFloor < 0 || c.Response.RedeemFloor < 0 {
		return errors.New("Response floors must be >= 0")
	}
	if c.Timeouts.Limiter <= 0 || c.Timeouts.Store <= 0 || c.Timeouts.Mail <= 0 {
		return errors.New("Timeouts must be > 0")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Mail
	link, err := url.Parse(c.Mail.ResetURL)
	if err != nil || link.Host == "" || (link.Scheme != "http" && link.Scheme != "https") {
		return errors.New("Mail ResetURL must be an absolute http(s) URL")
	}
	if c.Mail.Subject == "" {
		return errors.New("Mail Subject must not be empty")
	}
	if _, err := template.New("body").Parse(c.Mail.BodyTemplate); err != nil || c.Mail.BodyTemplate == "" {
		return errors.New("Mail BodyTemplate must be a valid text/template")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Security.ProductionMode {
		if c.Token.TTL > time.Hour {
			return errors.New("ProductionMode requires Token TTL <= 1h")
		}
		if link.Scheme != "https" {
			return errors.New("ProductionMode requires an https Mail ResetURL")
		}
		if c.RateLimit.FailOpen {
			return errors.New("ProductionMode forbids RateLimit FailOpen")
		}
		if c.Response.MinResponseFloor < c.WorstCaseRequestLatency() {
			return errors.New("ProductionMode requires Response MinResponseFloor >= worst-case request latency")
		}
		if c.Password.Memory < 64*1024 || c.Password.Time < 2 || c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires argon2id Memory >= 65536 KB, Time >= 2 and KeyLength >= 32")
		}
	}

	return nil
}
