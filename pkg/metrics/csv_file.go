// Package metrics records lightweight, best-effort observability data for the
// gateway client as local CSV files. It is not on the hot path: every function
// here logs and swallows its own errors rather than returning them, because a
// metrics write must never affect delivery of a protocol message.
package metrics

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/tzrikka/xdg"
)

const (
	appDirName = "gatewaylink"

	DefaultPingFile      = "pings_%s.csv"
	DefaultHeartbeatFile = "heartbeats_%s.csv"

	fileFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY
	filePerms = xdg.NewFilePermissions
)

var (
	muPing      sync.Mutex
	muHeartbeat sync.Mutex
)

// RecordPing appends an observability row for an incoming Ping control frame,
// per spec §4.7 ("record a monotonic millisecond timestamp for observability").
func RecordPing(l *slog.Logger, t time.Time, payloadLen int) {
	muPing.Lock()
	defer muPing.Unlock()

	record := []string{t.Format(time.RFC3339Nano), strconv.Itoa(payloadLen)}
	if err := appendToCSVFile(DefaultPingFile, t, record); err != nil {
		l.Error("metrics error: failed to record ping", slog.Any("error", err))
	}
}

// RecordHeartbeat appends an observability row for an outgoing Heartbeat packet.
// seq is nil for the first heartbeat of a connection (no sequence observed yet).
func RecordHeartbeat(l *slog.Logger, t time.Time, seq *int32) {
	muHeartbeat.Lock()
	defer muHeartbeat.Unlock()

	s := ""
	if seq != nil {
		s = strconv.FormatInt(int64(*seq), 10)
	}

	record := []string{t.Format(time.RFC3339Nano), s}
	if err := appendToCSVFile(DefaultHeartbeatFile, t, record); err != nil {
		l.Error("metrics error: failed to record heartbeat", slog.Any("error", err))
	}
}

func appendToCSVFile(nameTemplate string, t time.Time, record []string) error {
	name := fmt.Sprintf(nameTemplate, t.Format(time.DateOnly))
	path, err := xdg.CreateFile(xdg.StateHome, appDirName, name)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, fileFlags, filePerms) //gosec:disable G304 // Path is XDG-derived, not user input.
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}
