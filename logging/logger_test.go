package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			for _, format := range []string{"json", "console"} {
				log, err := New(tt.level, format, "page-editor")
				if err != nil {
					t.Fatalf("New(%q, %q): %v", tt.level, format, err)
				}
				if !log.Core().Enabled(tt.want) {
					t.Errorf("%s/%s: level %v disabled", tt.level, format, tt.want)
				}
				if tt.want > zapcore.DebugLevel && log.Core().Enabled(tt.want-1) {
					t.Errorf("%s/%s: level %v enabled", tt.level, format, tt.want-1)
				}
			}
		})
	}
}
