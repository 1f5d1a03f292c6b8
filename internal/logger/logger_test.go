package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestBuildTestIsNop(t *testing.T) {
	l := build("test")
	if l.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("expected test logger to discard everything")
	}
}

func TestSetLevel(t *testing.T) {
	_ = SetLevel("info")
	l := build("production")
	defer func() { _ = SetLevel("info") }()

	if l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("production logger should start at info")
	}
	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel() error: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug enabled after SetLevel")
	}
	if err := SetLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNamed(t *testing.T) {
	Init("test")
	if Named("sync") == nil {
		t.Fatal("expected child logger")
	}
}
