package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreMemory  = "memory"
	StoreFile    = "file"
	StoreSurreal = "surreal"
	StoreMongo   = "mongo"
)

// Authentication modes.
const (
	AuthJWT     = "jwt"
	AuthSession = "session"
)

// Config holds all configuration for the application.
type Config struct {
	ServerAddr string `validate:"required"`
	LogFormat  string `validate:"omitempty,oneof=text json"`
	LogLevel   string

	AuthMode string `validate:"required,oneof=jwt session"`
	// AuthCookieName names the cookie carrying the session token in both modes.
	AuthCookieName string `validate:"required"`
	JWTSecret      string `validate:"required_if=AuthMode jwt"`
	SessionSecret  string `validate:"required_if=AuthMode session"`
	SessionMaxAge  time.Duration

	// Redis is optional; when RedisAddr is set, JWT IDs are checked against
	// the revocation list stored under RevocationKey.
	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"gte=0"`
	RevocationKey string

	StoreDriver    string `validate:"required,oneof=memory file surreal mongo"`
	FileStorePath  string `validate:"required_if=StoreDriver file"`
	SurrealURL     string `validate:"required_if=StoreDriver surreal"`
	SurrealNS      string `validate:"required_if=StoreDriver surreal"`
	SurrealDB      string `validate:"required_if=StoreDriver surreal"`
	SurrealUser    string
	SurrealPass    string
	MongoURI       string        `validate:"required_if=StoreDriver mongo"`
	MongoDatabase  string        `validate:"required_if=StoreDriver mongo"`
	DBQueryTimeout time.Duration `validate:"gt=0"`

	SendBuffer         int           `validate:"gt=0"`
	WriteTimeout       time.Duration `validate:"gt=0"`
	MaxMessageBytes    int64         `validate:"gt=0"`
	HandshakeRateLimit int           `validate:"gte=0"`
	// AllowedOrigins are host patterns accepted on cross-origin handshakes.
	// Empty accepts any origin.
	AllowedOrigins []string

	// DegradeOnPersistFailure keeps a send going with the client's tempId when
	// the store fails instead of answering send-failed.
	DegradeOnPersistFailure bool

	TracingEnabled     bool
	TracingServiceName string
	TracingZipkinURL   string `validate:"omitempty,url"`
}

var validate = validator.New()

// New loads configuration from environment variables, reading a .env file
// first when one exists.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() (*Config, error) {
	p := &envParser{}

	cfg := &Config{
		ServerAddr: p.str("SERVER_ADDR", ":3000"),
		LogFormat:  strings.ToLower(p.str("LOG_FORMAT", "text")),
		LogLevel:   p.str("LOG_LEVEL", "info"),

		AuthMode:       strings.ToLower(p.str("AUTH_MODE", AuthJWT)),
		AuthCookieName: p.str("AUTH_COOKIE_NAME", "auth-token"),
		JWTSecret:      p.str("JWT_SECRET", ""),
		SessionSecret:  p.str("SESSION_SECRET", ""),
		SessionMaxAge:  p.duration("SESSION_MAX_AGE", 7*24*time.Hour),

		RedisAddr:     p.str("REDIS_ADDR", ""),
		RedisPassword: p.str("REDIS_PASSWORD", ""),
		RedisDB:       p.int("REDIS_DB", 0),
		RevocationKey: p.str("AUTH_REVOCATION_KEY", "jwt:revoked"),

		StoreDriver:    strings.ToLower(p.str("STORE_DRIVER", StoreMemory)),
		FileStorePath:  p.str("FILE_STORE_PATH", "data/messages.jsonl"),
		SurrealURL:     p.str("SURREAL_URL", ""),
		SurrealNS:      p.str("SURREAL_NS", ""),
		SurrealDB:      p.str("SURREAL_DB", ""),
		SurrealUser:    p.str("SURREAL_USER", ""),
		SurrealPass:    p.str("SURREAL_PASS", ""),
		MongoURI:       p.str("MONGODB_URI", ""),
		MongoDatabase:  p.str("MONGODB_DATABASE", "soile"),
		DBQueryTimeout: p.duration("DB_QUERY_TIMEOUT", 5*time.Second),

		SendBuffer:         p.int("WS_SEND_BUFFER", 256),
		WriteTimeout:       p.duration("WS_WRITE_TIMEOUT", 10*time.Second),
		MaxMessageBytes:    int64(p.int("WS_MAX_MESSAGE_BYTES", 64*1024)),
		HandshakeRateLimit: p.int("WS_HANDSHAKE_RATE_LIMIT", 60),
		AllowedOrigins:     p.list("WS_ALLOWED_ORIGINS"),

		DegradeOnPersistFailure: p.bool("RELAY_DEGRADE_ON_PERSIST_FAILURE", false),

		TracingEnabled:     p.bool("PUBSUB_TRACING_ENABLED", false),
		TracingServiceName: p.str("PUBSUB_TRACING_SERVICE_NAME", "relay"),
		TracingZipkinURL:   p.str("PUBSUB_TRACING_ZIPKIN_URL", "http://localhost:9411/api/v2/spans"),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and the cross-field rules they cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.AuthMode == AuthSession && len(c.SessionSecret) < 32 {
		return fmt.Errorf("config validation failed: SESSION_SECRET must be at least 32 bytes")
	}
	return nil
}

// envParser reads typed values and remembers the first parse failure.
type envParser struct {
	err error
}

func (p *envParser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// list splits a comma-separated value, dropping empty items.
func (p *envParser) list(key string) []string {
	var items []string
	for _, item := range strings.Split(p.str(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func (p *envParser) int(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *envParser) bool(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *envParser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid value for %s: %w", key, err)
	}
}
