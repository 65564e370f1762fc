package keygate

import (
	"errors"
	"strings"
	"text/template"
	"time"
)

// Config holds every tunable of an Engine. Start from DefaultConfig and
// override fields; Build rejects invalid combinations through Validate.
type Config struct {
	Token        TokenConfig
	Password     PasswordConfig
	Registration CodeConfig
	Recovery     CodeConfig
	Notification NotificationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls access and refresh token issuance.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte // hs256 secret, or ed25519 private key
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing algorithm and its cost.
type PasswordConfig struct {
	Algorithm   string // "argon2id" (default) or "bcrypt"
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int
}

/*
====================================
CODE CONFIG
====================================
*/

// CodeConfig governs the one-time codes of a single workflow.
type CodeConfig struct {
	CodeTTL time.Duration
	// CodeAttempts bounds how many fresh codes are tried when the generated
	// one is still pending for someone else.
	CodeAttempts int
	// KeyPrefix namespaces this workflow's codes inside the secret store.
	KeyPrefix string
}

/*
====================================
NOTIFICATION CONFIG
====================================
*/

// NotificationConfig shapes the messages carrying codes. Bodies are
// text/template sources executed with {{.Code}}, {{.Link}} and {{.TTL}}.
type NotificationConfig struct {
	RegistrationSubject string
	RegistrationBody    string
	RegistrationLink    string
	RecoverySubject     string
	RecoveryBody        string
	RecoveryLink        string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const (
	defaultRegistrationBody = "Here is the code for registration: {{.Code}} and here is the link for this action: {{.Link}}\nThe code expires in {{.TTL}}.\n"
	defaultRecoveryBody     = "Here is the code for password recovery: {{.Code}} and here is the link for this action: {{.Link}}\nThe code expires in {{.TTL}}.\n"
)

// DefaultConfig returns the production defaults. Token.PrivateKey is left
// empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     24 * time.Hour,
			RefreshTTL:    21 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			Algorithm:   "argon2id",
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Registration: CodeConfig{
			CodeTTL:      180 * time.Second,
			CodeAttempts: 5,
			KeyPrefix:    "reg",
		},
		Recovery: CodeConfig{
			CodeTTL:      180 * time.Second,
			CodeAttempts: 5,
			KeyPrefix:    "rec",
		},
		Notification: NotificationConfig{
			RegistrationSubject: "Registration code",
			RegistrationBody:    defaultRegistrationBody,
			RegistrationLink:    "http://localhost:4200/register-confirm",
			RecoverySubject:     "Password Recovery Code",
			RecoveryBody:        defaultRecoveryBody,
			RecoveryLink:        "http://localhost:4200/password-recovery",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must be >= AccessTTL")
	}
	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported Token SigningMethod")
	}

	// Password
	switch c.Password.Algorithm {
	case "argon2id":
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 || c.Password.Parallelism < 1 {
			return errors.New("Password Time and Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
			return errors.New("Password SaltLength and KeyLength must be >= 16")
		}
	case "bcrypt":
		if c.Password.BcryptCost < 0 || c.Password.BcryptCost > 31 {
			return errors.New("Password BcryptCost must be within [0, 31]")
		}
	default:
		return errors.New("unsupported Password Algorithm")
	}

	// Codes
	for name, cc := range map[string]CodeConfig{"Registration": c.Registration, "Recovery": c.Recovery} {
		if cc.CodeTTL <= 0 {
			return errors.New(name + " CodeTTL must be > 0")
		}
		if cc.CodeAttempts < 1 {
			return errors.New(name + " CodeAttempts must be >= 1")
		}
		if strings.TrimSpace(cc.KeyPrefix) == "" {
			return errors.New(name + " KeyPrefix must not be empty")
		}
	}
	if c.Registration.KeyPrefix == c.Recovery.KeyPrefix {
		return errors.New("Registration and Recovery KeyPrefix must differ")
	}

	// Notification
	if c.Notification.RegistrationSubject == "" || c.Notification.RecoverySubject == "" {
		return errors.New("Notification subjects must not be empty")
	}
	for _, body := range []string{c.Notification.RegistrationBody, c.Notification.RecoveryBody} {
		if _, err := template.New("body").Parse(body); err != nil {
			return errors.New("Notification body template invalid: " + err.Error())
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
