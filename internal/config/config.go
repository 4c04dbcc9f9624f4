// Package config loads service configuration from the environment, with an
// optional .env file for local development. Environment variables (VIABOT_*)
// always win over .env values.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	WhatsApp WhatsAppConfig
	Sicoob   SicoobConfig
	Bradesco BradescoConfig
	Security SecurityConfig
	Limits   LimitsConfig
	Storage  StorageConfig
	Site     SiteConfig
	Log      LogConfig
	DevTools DevToolsConfig
}

type ServerConfig struct {
	Port int
}

type WhatsAppConfig struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
	VerifyToken   string
	AppSecret     string
}

type SicoobConfig struct {
	BaseURL      string
	AuthTokenURL string
	ClientID     string
	ClientSecret string
	ClientNumber string
}

type BradescoConfig struct {
	BaseURL         string
	APIPrefix       string
	ClientID        string
	BeneficiaryCNPJ string
}

type SecurityConfig struct {
	IdentifierPepper string
}

type LimitsConfig struct {
	MessagesPerWindow   int
	WindowSeconds       int
	ContactMaxChars     int
	SessionTTLSeconds   int
	BankTimeoutSeconds  int
	ProviderCallsPerMin int
}

type StorageConfig struct {
	DataDir     string
	ArtifactDir string
}

type SiteConfig struct {
	BaseURL       string
	TokenSecret   string
	TokenTTLMin   int
	TokensEnabled bool
}

type LogConfig struct {
	Level string
}

type DevToolsConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 4000},
		WhatsApp: WhatsAppConfig{
			BaseURL: "https://graph.facebook.com/v19.0",
		},
		Bradesco: BradescoConfig{APIPrefix: "/v1/boleto"},
		Limits: LimitsConfig{
			MessagesPerWindow:   20,
			WindowSeconds:       60,
			ContactMaxChars:     500,
			SessionTTLSeconds:   900,
			BankTimeoutSeconds:  15,
			ProviderCallsPerMin: 120,
		},
		Storage: StorageConfig{
			DataDir:     "./data",
			ArtifactDir: "./data/artifacts",
		},
		Site: SiteConfig{TokenTTLMin: 15},
		Log:  LogConfig{Level: "info"},
	}
}

// Load resolves the full configuration: defaults, then a .env file when one
// exists, then VIABOT_* environment variables.
func Load() (Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := defaults()
	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if len(cfg.Security.IdentifierPepper) < 32 {
		return fmt.Errorf("VIABOT_IDENTIFIER_PEPPER must be at least 32 characters")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("VIABOT_SERVER_PORT out of range: %d", cfg.Server.Port)
	}
	if cfg.Site.TokensEnabled && cfg.Site.TokenSecret == "" {
		return fmt.Errorf("VIABOT_SITE_TOKEN_SECRET is required when site tokens are enabled")
	}
	return nil
}
