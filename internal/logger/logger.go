// Package logger builds the zap logger used across region-lens.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "REGION_LENS_LOG_LEVEL"

// New returns a JSON logger writing to stderr. stdout is reserved for the MCP
// protocol, so nothing is ever written there.
//
// Debug and info entries go through one core and warn and above through
// another, so that a debug build can be filtered independently of errors.
func New(level string) (*zap.Logger, error) {
	if env := os.Getenv(EnvLevel); env != "" {
		level = env
	}

	min, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if min == zapcore.DebugLevel {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	stderrSyncer := zapcore.Lock(os.Stderr)

	infoLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= min && l < zapcore.WarnLevel
	})
	warnErrorFatalLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= min && l >= zapcore.WarnLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), stderrSyncer, infoLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), stderrSyncer, warnErrorFatalLevel),
	)

	return zap.New(core, zap.AddCaller()), nil
}

// ParseLevel maps a level name to a zap level. An empty name means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
