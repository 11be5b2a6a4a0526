package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitLoggerWritesFile(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	path := filepath.Join(t.TempDir(), "arena.log")
	if err := InitLogger(path); err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
	Log.Debugw("relay state", "state", "listening")
	SyncLogger()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(b)
	// 文件里保留 Debug，级别大写，带短调用位置
	for _, want := range []string{"DEBUG", "relay state", "logger_test.go", "listening"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}
