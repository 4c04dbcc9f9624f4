package config

import (
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{env: "VIABOT_SERVER_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) }},

	{env: "VIABOT_WHATSAPP_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.WhatsApp.BaseURL = v.(string) }},
	{env: "VIABOT_WHATSAPP_PHONE_NUMBER_ID", typ: kString,
		apply: func(cfg *Config, v any) { cfg.WhatsApp.PhoneNumberID = v.(string) }},
	{env: "VIABOT_WHATSAPP_ACCESS_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.WhatsApp.AccessToken = v.(string) }},
	{env: "VIABOT_WHATSAPP_VERIFY_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.WhatsApp.VerifyToken = v.(string) }},
	{env: "VIABOT_WHATSAPP_APP_SECRET", typ: kString,
		apply: func(cfg *Config, v any) { cfg.WhatsApp.AppSecret = v.(string) }},

	{env: "VIABOT_SICOOB_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Sicoob.BaseURL = v.(string) }},
	{env: "VIABOT_SICOOB_AUTH_TOKEN_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Sicoob.AuthTokenURL = v.(string) }},
	{env: "VIABOT_SICOOB_CLIENT_ID", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Sicoob.ClientID = v.(string) }},
	{env: "VIABOT_SICOOB_CLIENT_SECRET", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Sicoob.ClientSecret = v.(string) }},
	{env: "VIABOT_SICOOB_CLIENT_NUMBER", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Sicoob.ClientNumber = v.(string) }},

	{env: "VIABOT_BRADESCO_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Bradesco.BaseURL = v.(string) }},
	{env: "VIABOT_BRADESCO_API_PREFIX", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Bradesco.APIPrefix = v.(string) }},
	{env: "VIABOT_BRADESCO_CLIENT_ID", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Bradesco.ClientID = v.(string) }},
	{env: "VIABOT_BRADESCO_BENEFICIARY_CNPJ", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Bradesco.BeneficiaryCNPJ = v.(string) }},

	{env: "VIABOT_IDENTIFIER_PEPPER", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Security.IdentifierPepper = v.(string) }},

	{env: "VIABOT_LIMITS_MESSAGES_PER_WINDOW", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Limits.MessagesPerWindow = v.(int) }},
	{env: "VIABOT_LIMITS_WINDOW_SECONDS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Limits.WindowSeconds = v.(int) }},
	{env: "VIABOT_LIMITS_CONTACT_MAX_CHARS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Limits.ContactMaxChars = v.(int) }},
	{env: "VIABOT_LIMITS_SESSION_TTL_SECONDS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Limits.SessionTTLSeconds = v.(int) }},
	{env: "VIABOT_LIMITS_BANK_TIMEOUT_SECONDS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Limits.BankTimeoutSeconds = v.(int) }},
	{env: "VIABOT_LIMITS_PROVIDER_CALLS_PER_MIN", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Limits.ProviderCallsPerMin = v.(int) }},

	{env: "VIABOT_STORAGE_DATA_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) }},
	{env: "VIABOT_STORAGE_ARTIFACT_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Storage.ArtifactDir = v.(string) }},

	{env: "VIABOT_SITE_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Site.BaseURL = v.(string) }},
	{env: "VIABOT_SITE_TOKEN_SECRET", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Site.TokenSecret = v.(string) }},
	{env: "VIABOT_SITE_TOKEN_TTL_MIN", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Site.TokenTTLMin = v.(int) }},
	{env: "VIABOT_SITE_TOKENS_ENABLED", typ: kBool,
		apply: func(cfg *Config, v any) { cfg.Site.TokensEnabled = v.(bool) }},

	{env: "VIABOT_LOG_LEVEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) }},

	{env: "VIABOT_DEVTOOLS_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.DevTools.Token = v.(string) }},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if v, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, v)
			}
		case kBool:
			if v, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, v)
			}
		}
	}
}
