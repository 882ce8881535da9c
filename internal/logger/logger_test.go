package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogsObjectAsSingleField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := Zap{L: zap.New(core)}

	log.InfoObj("job finished", "job", map[string]any{"id": "abc", "news": 3})
	log.DebugObj("skip", "url", "https://www.publico.pt/x")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	job, ok := fields["job"].(map[string]interface{})
	if !ok || job["id"] != "abc" {
		t.Fatalf("unexpected job field %#v", fields["job"])
	}
	if entries[1].Level != zapcore.DebugLevel {
		t.Fatalf("unexpected level %v", entries[1].Level)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for raw, want := range cases {
		if got := parseLevel(raw); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestEnsureAndGlobalAreSafeWithoutInit(t *testing.T) {
	if _, ok := Ensure(nil).(NopLogger); !ok {
		t.Fatalf("Ensure(nil) must return NopLogger")
	}
	S = nil
	Global().ErrorObj("dropped", "k", 1)
}
