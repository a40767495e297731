package metrics_test

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/corvidlabs/gatewaylink/pkg/metrics"
)

func TestRecordPing(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	now := time.Now().UTC()

	metrics.RecordPing(slog.Default(), now, 4)

	path := stateFile(t, fmt.Sprintf(metrics.DefaultPingFile, now.Format(time.DateOnly)))
	f, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	want := now.Format(time.RFC3339Nano) + ",4\n"
	if got := string(f); got != want {
		t.Errorf("ping file content = %q, want %q", got, want)
	}
}

func TestRecordHeartbeat(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	now := time.Now().UTC()
	seq := int32(3)

	metrics.RecordHeartbeat(slog.Default(), now, nil)
	metrics.RecordHeartbeat(slog.Default(), now, &seq)

	path := stateFile(t, fmt.Sprintf(metrics.DefaultHeartbeatFile, now.Format(time.DateOnly)))
	f, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	ts := now.Format(time.RFC3339Nano)
	want := fmt.Sprintf("%s,\n%s,3\n", ts, ts)
	if got := string(f); got != want {
		t.Errorf("heartbeat file content = %q, want %q", got, want)
	}
}

// stateFile locates the file under $XDG_STATE_HOME/gatewaylink that the
// package writes to, without depending on the xdg package's exact layout.
func stateFile(t *testing.T, name string) string {
	t.Helper()

	base := os.Getenv("XDG_STATE_HOME")
	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() {
			return base + "/" + e.Name() + "/" + name
		}
	}

	t.Fatalf("no app state directory found under %s", base)
	return ""
}
