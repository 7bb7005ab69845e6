package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields
// replaced by the redaction placeholder "***". Use this when logging the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.AdminAPISecret)

	// Copy slices so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Amm.CollateralWhitelist != nil {
		out.Amm.CollateralWhitelist = make([]string, len(cfg.Amm.CollateralWhitelist))
		copy(out.Amm.CollateralWhitelist, cfg.Amm.CollateralWhitelist)
	}
	if cfg.Amm.MarketCreators != nil {
		out.Amm.MarketCreators = make([]string, len(cfg.Amm.MarketCreators))
		copy(out.Amm.MarketCreators, cfg.Amm.MarketCreators)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
