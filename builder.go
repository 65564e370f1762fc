package keygate

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/plextask/keygate/internal"
	"github.com/plextask/keygate/internal/stores"
	"github.com/plextask/keygate/jwt"
	"github.com/plextask/keygate/password"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. Every With* method returns the builder for
// chaining; Build validates the result and may be called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	secrets     SecretStore
	accounts    AccountStore
	notifier    Notifier
	hasher      PasswordHasher
	auditSink   AuditSink
	logger      *zap.Logger
	clock       func() time.Time
	redisPrefix string

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the secret store with client. Ignored when WithSecretStore
// is also used.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRedisPrefix sets the key prefix for the Redis secret store.
func (b *Builder) WithRedisPrefix(prefix string) *Builder {
	b.redisPrefix = prefix
	return b
}

func (b *Builder) WithSecretStore(store SecretStore) *Builder {
	b.secrets = store
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithPasswordHasher overrides the hasher selected by Config.Password.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token issuance, expiry reporting and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and dependencies and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	secrets := b.secrets
	if secrets == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or secret store required")
		}
		secrets = stores.NewSecretStore(b.redis, b.redisPrefix)
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	hasher := b.hasher
	if hasher == nil {
		var err error
		if hasher, err = newHasher(cfg.Password); err != nil {
			return nil, err
		}
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		Now:           clock,
	})
	if err != nil {
		return nil, err
	}

	n := cfg.Notification
	registrationMessage, err := newCodeMessage("registration", n.RegistrationSubject, n.RegistrationBody, n.RegistrationLink, cfg.Registration.CodeTTL)
	if err != nil {
		return nil, err
	}
	recoveryMessage, err := newCodeMessage("recovery", n.RecoverySubject, n.RecoveryBody, n.RecoveryLink, cfg.Recovery.CodeTTL)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b.built = true

	return &Engine{
		config:              cfg,
		secrets:             secrets,
		accounts:            b.accounts,
		notifier:            b.notifier,
		hasher:              hasher,
		tokens:              tokens,
		audit:               newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:             NewMetrics(cfg.Metrics),
		logger:              logger.Named("keygate"),
		registrationMessage: registrationMessage,
		recoveryMessage:     recoveryMessage,
		clock:               clock,
		newCode:             internal.NewCode,
		newID:               uuid.NewString,
	}, nil
}

func newHasher(cfg PasswordConfig) (PasswordHasher, error) {
	switch cfg.Algorithm {
	case "bcrypt":
		return password.NewBcrypt(cfg.BcryptCost)
	default:
		return password.NewArgon2(password.Argon2Config{
			Memory:      cfg.Memory,
			Time:        cfg.Time,
			Parallelism: cfg.Parallelism,
			SaltLength:  cfg.SaltLength,
			KeyLength:   cfg.KeyLength,
		})
	}
}
