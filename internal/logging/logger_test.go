package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewDevelopment(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ce := logger.Check(zapcore.InfoLevel, "probe")
	if ce == nil {
		t.Fatal("expected info level enabled in development mode")
	}
	if ce.LoggerName != "jobsonar" {
		t.Fatalf("expected service-named logger, got %q", ce.LoggerName)
	}
	ce.Write()
}

func TestNewProduction(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	if ce := logger.Check(zapcore.DebugLevel, "probe"); ce != nil {
		t.Fatal("expected debug level disabled in production mode")
	}
	ce := logger.Check(zapcore.InfoLevel, "probe")
	if ce == nil {
		t.Fatal("expected info level enabled in production mode")
	}
	ce.Write()
}
