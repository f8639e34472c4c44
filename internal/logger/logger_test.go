package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestKeyValuePairsBecomeFields(t *testing.T) {
	l, logs := newObservedLogger()

	l.Info("user registered", "user_id", "u1", "role", "Manager")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Message != "user registered" {
		t.Fatalf("message = %q, want %q", e.Message, "user registered")
	}
	fields := e.ContextMap()
	if fields["user_id"] != "u1" {
		t.Errorf("user_id field = %v, want u1", fields["user_id"])
	}
	if fields["role"] != "Manager" {
		t.Errorf("role field = %v, want Manager", fields["role"])
	}
}

func TestLevelsForwardToMatchingVariants(t *testing.T) {
	l, logs := newObservedLogger()

	l.Debug("request", "status", 200)
	l.Warn("slow query", "duration_ms", int64(1500))
	l.Error("append failed", "action", "Created project: p1")

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []zapcore.Level{zapcore.DebugLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != want[i] {
			t.Errorf("entry %d level = %v, want %v", i, e.Level, want[i])
		}
		if len(e.Context) != 1 {
			t.Errorf("entry %d has %d fields, want 1", i, len(e.Context))
		}
	}
}
