package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/plantconnect/internal/config"
	"github.com/banshee-data/plantconnect/internal/sink"
)

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"-c", "tuning.toml", "--serial-port", "/dev/ttyUSB0", "--stream", "--log-level", "debug"})
	if err != nil {
		t.Fatal(err)
	}
	if f.configPath != "tuning.toml" || f.serialPort != "/dev/ttyUSB0" || !f.stream {
		t.Errorf("flags = %+v", f)
	}
	if f.listen != ":8080" || !f.autostart || f.audio {
		t.Errorf("defaults = %+v", f)
	}

	if _, err := parseFlags([]string{"--log-level", "loud"}); err == nil {
		t.Error("expected error for bad log level")
	}
	if _, err := parseFlags([]string{"--listen", ""}); err == nil {
		t.Error("expected error for empty listen address")
	}
}

func TestBuildSink(t *testing.T) {
	s, err := buildSink(config.Endpoints{}, "fern", "plantconnect", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(sink.Log); !ok {
		t.Errorf("no endpoints should log, got %T", s)
	}

	s, err = buildSink(config.Endpoints{MQTTURL: "localhost:1883", SinkURL: "http://collector.local/ingest"}, "fern", "plantconnect", nil)
	if err != nil {
		t.Fatal(err)
	}
	if m, ok := s.(sink.Multi); !ok || len(m) != 2 {
		t.Errorf("both endpoints should fan out, got %T", s)
	}

	if _, err := buildSink(config.Endpoints{SinkURL: "ftp://nope"}, "fern", "p", nil); err == nil {
		t.Error("expected error for bad sink url")
	}
}

func TestReadReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.log")
	data := "# fern, morning\nTOP:1,VAL:1,INT:40\n\nTOP:1,VAL:1,INT:80\n  TOP:1,VAL:1,INT:20  \n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	lines, err := readReplay(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 3 || lines[0] != "TOP:1,VAL:1,INT:40" || lines[2] != "TOP:1,VAL:1,INT:20" {
		t.Errorf("lines = %q", lines)
	}

	empty := filepath.Join(t.TempDir(), "empty.log")
	if err := os.WriteFile(empty, []byte("# nothing\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readReplay(empty); err == nil {
		t.Error("expected error for a capture with no lines")
	}
	if _, err := readReplay(filepath.Join(t.TempDir(), "missing.log")); err == nil {
		t.Error("expected error for a missing capture")
	}
}
