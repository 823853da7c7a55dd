package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
		ok   bool
	}{
		{"debug", zapcore.DebugLevel, true},
		{"INFO", zapcore.InfoLevel, true},
		{"", zapcore.InfoLevel, true},
		{"warning", zapcore.WarnLevel, true},
		{"error", zapcore.ErrorLevel, true},
		{"verbose", zapcore.InfoLevel, false},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseLevel(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	logger, err := New("debug")
	if err != nil {
		t.Fatalf("创建日志失败: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug 级别应启用")
	}

	if _, err := New("nope"); err == nil {
		t.Error("未知级别应返回错误")
	}
}
