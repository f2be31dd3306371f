package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode          Mode
	HTTPAddr      string
	ProvisionAddr string
	PublicURL     string

	DBDriver string
	DBDSN    string

	AuthHMACSecret string
	TokenTTL       time.Duration
	BcryptCost     int
	EnableSignUp   bool

	// CredentialSealKey seals generated passwords for one-time reveal.
	CredentialSealKey   string
	CredentialRevealTTL time.Duration

	// RedisAddr enables the shared token denylist; empty keeps it in memory.
	RedisAddr string

	CORSOrigins []string

	LogLevel  string
	LogFormat string // console|json

	AdminEmail    string
	AdminPassword string

	CountdownTick time.Duration
}

// LoadDotEnv reads a .env file when present. Missing files are not an error.
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded, using process environment")
	}
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	defFormat := "console"
	if mode == ModeOnline {
		defFormat = "json"
	}
	return Config{
		Mode:          mode,
		HTTPAddr:      envOr("HTTP_ADDR", ":8080"),
		ProvisionAddr: envOr("PROVISION_ADDR", ":8081"),
		PublicURL:     os.Getenv("PUBLIC_URL"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		AuthHMACSecret: envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		TokenTTL:       envDuration("TOKEN_TTL", 8*time.Hour),
		BcryptCost:     envInt("BCRYPT_COST", 12),
		EnableSignUp:   envBool("ENABLE_SIGN_UP", true),

		CredentialSealKey:   envOr("CREDENTIAL_SEAL_KEY", "dev-credential-seal-key"),
		CredentialRevealTTL: envDuration("CREDENTIAL_REVEAL_TTL", 24*time.Hour),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		CORSOrigins: csvOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"),

		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", defFormat),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		CountdownTick: envDuration("COUNTDOWN_TICK", time.Second),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
