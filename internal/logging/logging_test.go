package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		env     string
		want    zapcore.Level
		wantErr bool
	}{
		{name: "default warn", want: zapcore.WarnLevel},
		{name: "explicit debug", config: Config{Level: "debug"}, want: zapcore.DebugLevel},
		{name: "upper case", config: Config{Level: "ERROR"}, want: zapcore.ErrorLevel},
		{name: "from env", env: "info", want: zapcore.InfoLevel},
		{name: "config beats env", config: Config{Level: "error"}, env: "debug", want: zapcore.ErrorLevel},
		{name: "bad level", config: Config{Level: "loud"}, wantErr: true},
		{name: "bad format", config: Config{Format: "xml"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvLevel, tt.env)
			logger, err := New(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := logger.Level(); got != tt.want {
				t.Fatalf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	logger, err := New(Config{Level: "info", Format: "json", OutputPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("parsed")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"parsed"`) {
		t.Fatalf("unexpected log output: %s", data)
	}
}
