package logger

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger. format "json" selects the production
// encoder, anything else the development console encoder. An empty level
// keeps the encoder's default.
func NewLogger(format, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch format {
	case "json", "prod":
		cfg = zap.NewProductionConfig()
	case "", "console", "dev":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, eris.Errorf("logger: unknown format %q", format)
	}

	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, eris.Wrapf(err, "logger: invalid level %q", level)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, eris.Wrap(err, "logger: build")
	}
	return l, nil
}

// Init builds the logger and installs it as the zap global.
func Init(format, level string) (*zap.Logger, error) {
	l, err := NewLogger(format, level)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(l)
	return l, nil
}
