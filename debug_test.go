package spanstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDebugLogger_Writes(t *testing.T) {
	var buf bytes.Buffer
	l := newDebugLoggerTo(&buf)

	l.Log("opened %s", "x.db")
	l.LogTx("write", 3, time.Millisecond, nil)
	l.LogTx("commit", 0, time.Millisecond, errors.New("disk full"))
	l.LogSubscription("added", 7, "all")
	l.LogError("watch", errors.New("boom"))

	out := buf.String()
	for _, want := range []string{"opened x.db", "tx committed", "changes=3", "tx aborted", "disk full", "subscription added", "sub=7", "boom", "component=spanstore"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestDebugLogger_DisabledAndNil(t *testing.T) {
	var nilLogger *DebugLogger
	nilLogger.Log("x")
	nilLogger.LogTx("write", 1, 0, nil)
	nilLogger.LogError("x", errors.New("x"))
	if err := nilLogger.Close(); err != nil {
		t.Errorf("nil Close = %v", err)
	}

	path := filepath.Join(t.TempDir(), "debug.log")
	l, err := NewDebugLogger(false, path)
	if err != nil {
		t.Fatal(err)
	}
	l.Log("hidden")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("disabled logger created a log file")
	}
}

func TestOpen_DebugLogFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "debug.log")

	s, err := Open(Config{Path: filepath.Join(dir, "records.db"), DisableFileWatch: true, Debug: true, DebugLogPath: logPath})
	if err != nil {
		t.Fatal(err)
	}
	mustInsert(t, s, spanRecord(0, 1))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"tx committed", "closed store"} {
		if !strings.Contains(out, want) {
			t.Errorf("debug log missing %q", want)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("debug log file contains color codes")
	}
}
