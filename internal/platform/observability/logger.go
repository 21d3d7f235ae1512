package observability

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel turns a config string such as "debug" or "warn" into a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zap.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zap.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// NewConsoleLogger is the logger used before OpenTelemetry is available.
func NewConsoleLogger(serviceName string, level zapcore.Level) *zap.Logger {
	return zap.New(consoleCore(level),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", serviceName)),
	)
}

// NewBridgedLogger tees the console core with the OpenTelemetry log bridge so
// every record is also exported through the global LoggerProvider.
func NewBridgedLogger(serviceName string, level zapcore.Level) *zap.Logger {
	otelZapCore := otelzap.NewCore(serviceName+".manual",
		otelzap.WithLoggerProvider(global.GetLoggerProvider()),
	)

	finalCore := zapcore.NewTee(withLevel(otelZapCore, level), consoleCore(level))
	return zap.New(finalCore,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", serviceName)),
	)
}

func consoleCore(level zapcore.Level) zapcore.Core {
	consoleEncoderConfig := zap.NewProductionEncoderConfig()
	consoleEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(consoleEncoderConfig),
		zapcore.Lock(os.Stdout),
		level,
	)
}

// levelCore drops entries below level before they reach the wrapped core.
type levelCore struct {
	zapcore.Core
	level zapcore.LevelEnabler
}

func withLevel(core zapcore.Core, level zapcore.LevelEnabler) zapcore.Core {
	return levelCore{Core: core, level: level}
}

func (c levelCore) Enabled(l zapcore.Level) bool {
	return c.level.Enabled(l) && c.Core.Enabled(l)
}

func (c levelCore) With(fields []zapcore.Field) zapcore.Core {
	return levelCore{Core: c.Core.With(fields), level: c.level}
}

func (c levelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.level.Enabled(ent.Level) {
		return ce
	}
	return c.Core.Check(ent, ce)
}
