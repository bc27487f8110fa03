package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/raysh454/netmon/internal/logging"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("line is not JSON: %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestStdoutLogger_WritesJSONLines(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, "monitor", logging.LevelDebug)

	logger.Info("request added", logging.F("id", "abc"), logging.F("count", 2))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["level"] != "info" || lines[0]["msg"] != "request added" {
		t.Errorf("unexpected entry: %v", lines[0])
	}
	if lines[0]["component"] != "monitor" {
		t.Errorf("expected component monitor, got %v", lines[0]["component"])
	}
	fields := lines[0]["fields"].(map[string]any)
	if fields["id"] != "abc" {
		t.Errorf("expected field id=abc, got %v", fields["id"])
	}
}

func TestStdoutLogger_DropsBelowMinLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, "", logging.LevelWarn)

	logger.Debug("noise")
	logger.Info("noise")
	logger.Warn("kept")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "kept" {
		t.Fatalf("expected only the warn line, got %v", lines)
	}
}

func TestStdoutLogger_WithCarriesFieldsAndComponent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	root := logging.NewWriterLogger(&buf, "root", logging.LevelInfo)

	child := root.With(logging.F("component", "proxy"), logging.F("listen", ":8081"))
	child.Error("boom", logging.Err(nil))

	lines := decodeLines(t, &buf)
	if lines[0]["component"] != "proxy" {
		t.Errorf("expected component proxy, got %v", lines[0]["component"])
	}
	fields := lines[0]["fields"].(map[string]any)
	if fields["listen"] != ":8081" {
		t.Errorf("expected persistent field listen, got %v", fields)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]logging.Level{
		"debug":   logging.LevelDebug,
		"WARN":    logging.LevelWarn,
		"error":   logging.LevelError,
		"":        logging.LevelInfo,
		"verbose": logging.LevelInfo,
	}
	for in, want := range cases {
		if got := logging.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
