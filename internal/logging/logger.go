package logging

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dynetl/internal/config"
)

// New builds the process logger. Output always goes to stderr so the stdio
// MCP transport keeps stdout to itself.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

var keyValuePassword = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)

// SanitizeConnectionString masks credentials in a connection string so it can
// be logged. URL forms (mongodb://, postgres://) have their password replaced;
// key/value DSNs have password=... replaced; MySQL user:pass@tcp(...) forms
// have the part after the colon masked.
func SanitizeConnectionString(dsn string) string {
	if dsn == "" {
		return dsn
	}
	if strings.Contains(dsn, "://") {
		if u, err := url.Parse(dsn); err == nil && u.User != nil {
			if _, has := u.User.Password(); has {
				u.User = url.UserPassword(u.User.Username(), "xxxxx")
				return strings.Replace(u.String(), "xxxxx", "***", 1)
			}
			return dsn
		}
	}
	if keyValuePassword.MatchString(dsn) {
		return keyValuePassword.ReplaceAllString(dsn, "${1}***")
	}
	if at := strings.Index(dsn, "@"); at > 0 {
		creds := dsn[:at]
		if colon := strings.Index(creds, ":"); colon >= 0 {
			return creds[:colon+1] + "***" + dsn[at:]
		}
	}
	return dsn
}
