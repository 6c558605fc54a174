package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds application configuration values.
type Config struct {
	App      AppConfig      `env:",prefix=APP_"`
	Database DatabaseConfig `env:",prefix=DB_"`
	JWT      JWTConfig      `env:",prefix=JWT_"`
	Google   GoogleConfig   `env:",prefix=GOOGLE_"`
	Telegram TelegramConfig `env:",prefix=TELEGRAM_"`
	Upload   UploadConfig   `env:",prefix=UPLOAD_"`

	CORSAllowOrigins string `env:"CORS_ALLOW_ORIGINS,default=http://localhost:5173"`
}

// AppConfig holds server-level settings.
type AppConfig struct {
	Name string `env:"NAME,default=Campus Points"`
	Port string `env:"PORT,default=8080"`
}

// DatabaseConfig describes how to reach Postgres. URL wins when set.
type DatabaseConfig struct {
	URL      string `env:"URL"`
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=campuspoints"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
}

// JWTConfig controls bearer token issuance.
type JWTConfig struct {
	Secret string        `env:"SECRET"`
	TTL    time.Duration `env:"TTL,default=168h"`
}

// GoogleConfig holds OAuth client credentials for calendar sync.
type GoogleConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT"`
}

// Enabled reports whether calendar sync can be used.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// TelegramConfig holds the staff alert bot settings.
type TelegramConfig struct {
	BotToken    string `env:"BOT_TOKEN"`
	AdminChatID string `env:"ADMIN_CHAT_ID"`
}

// UploadConfig controls where avatars are written.
type UploadConfig struct {
	Dir     string `env:"DIR,default=uploads"`
	MaxSize int    `env:"MAX_SIZE,default=5242880"`
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := load(context.Background(), envconfig.OsLookuper())
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.JWT.Secret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	return cfg
}

// LoadDatabase reads only the database settings, for tools that do not
// serve HTTP.
func LoadDatabase() DatabaseConfig {
	_ = godotenv.Load()

	cfg, err := load(context.Background(), envconfig.OsLookuper())
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg.Database
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	return &cfg, nil
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}
