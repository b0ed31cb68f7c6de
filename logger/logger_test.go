package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"":        INFO,
		"warning": WARN,
		"warn":    WARN,
		"error":   ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	SetLevel(WARN)
	Infof("hidden %d", 1)
	Warnf("visible %d", 2)
	Error("also visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered: %s", out)
	}
	if !strings.Contains(out, "[WARN]  ") || !strings.Contains(out, "visible 2") {
		t.Errorf("missing warning in output: %s", out)
	}
	if !strings.Contains(out, "[ERROR] ") {
		t.Errorf("missing error in output: %s", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("captured output should not be colored: %q", out)
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Errorf("expected caller file in output: %s", out)
	}
}

func TestInitFileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")
	if err := Init(path, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info("written to file")
	Close()
	defer SetOutput(os.Stdout)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing message: %s", data)
	}
}

func TestInitRequiresDestination(t *testing.T) {
	defer SetOutput(os.Stdout)
	if err := Init("", false); err == nil {
		t.Error("Expected error when no destination is given")
	}
}
