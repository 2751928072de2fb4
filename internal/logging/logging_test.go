package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Output: &buf})

	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")

	output := buf.String()
	if strings.Contains(output, "info message") {
		t.Error("expected info message to be filtered at warn level")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("expected warn message to be logged")
	}
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "chatty", Output: &buf})

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("expected debug message to be filtered at info level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("expected info message to be logged")
	}
}
