package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/castle-chat/clawlink/pkg/log"
)

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

func TestFormatRequestEvent(t *testing.T) {
	ts := time.Date(2026, 8, 20, 10, 15, 32, 123456000, time.UTC)
	event := log.Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:      log.MessageTypeRequest,
			MessageID: 7,
			Method:    "connect",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "2026-08-20T10:15:32.123456Z") {
		t.Errorf("expected formatted timestamp, got: %s", output)
	}
	if !strings.Contains(output, "[conn:abc12345]") {
		t.Errorf("expected shortened connection ID, got: %s", output)
	}
	if !strings.Contains(output, "OUT") {
		t.Errorf("expected OUT direction, got: %s", output)
	}
	if !strings.Contains(output, "WIRE REQUEST") {
		t.Errorf("expected wire request header, got: %s", output)
	}
	if !strings.Contains(output, "Method: connect") {
		t.Errorf("expected method line, got: %s", output)
	}
}

func TestFormatResponseEvent(t *testing.T) {
	ok := false
	rt := 42 * time.Millisecond
	event := log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:      log.MessageTypeResponse,
			MessageID: 7,
			OK:        &ok,
			ErrorCode: "auth_failed",
			RoundTrip: &rt,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "OK: false") {
		t.Errorf("expected OK line, got: %s", output)
	}
	if !strings.Contains(output, "ErrorCode: auth_failed") {
		t.Errorf("expected error code, got: %s", output)
	}
	if !strings.Contains(output, "RoundTrip: 42.000ms") {
		t.Errorf("expected round trip, got: %s", output)
	}
}

func TestFormatCloseControlEvent(t *testing.T) {
	status := 4008
	event := log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerTransport,
		Category:  log.CategoryControl,
		ControlMsg: &log.ControlMsgEvent{
			Type:        log.ControlMsgClose,
			CloseStatus: &status,
			CloseReason: "device-auth-mismatch",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "CTRL CLOSE") {
		t.Errorf("expected CTRL header for control events, got: %s", output)
	}
	if !strings.Contains(output, "CloseStatus: 4008") {
		t.Errorf("expected close status, got: %s", output)
	}
	if !strings.Contains(output, "CloseReason: device-auth-mismatch") {
		t.Errorf("expected close reason, got: %s", output)
	}
}

func TestFormatDroppedFrameEvent(t *testing.T) {
	event := log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame:     &log.FrameEvent{Size: 2048, Dropped: true},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "2048 bytes (dropped: over size ceiling)") {
		t.Errorf("expected dropped marker, got: %s", output)
	}
}

func TestParseFlags(t *testing.T) {
	if _, err := parseLayer("engine"); err != nil {
		t.Errorf("engine should be a valid layer: %v", err)
	}
	if _, err := parseLayer("service"); err == nil {
		t.Error("service is not a clawlink layer")
	}
	if _, err := parseDirection("OUT"); err != nil {
		t.Errorf("direction parse should be case-insensitive: %v", err)
	}
	if _, err := parseCategory("snapshot"); err == nil {
		t.Error("snapshot is not a clawlink category")
	}
}

// writeFixture creates a .clog file with a small mixed event stream.
func writeFixture(t *testing.T, path string) {
	t.Helper()
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("create fixture logger: %v", err)
	}
	defer logger.Close()

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	ok := true

	logger.Log(log.Event{
		Timestamp:    base,
		ConnectionID: "conn-a",
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		GatewayURL:   "ws://gw.local:8089/ws",
		Message:      &log.MessageEvent{Type: log.MessageTypeRequest, MessageID: 1, Method: "connect"},
	})
	logger.Log(log.Event{
		Timestamp:    base.Add(20 * time.Millisecond),
		ConnectionID: "conn-a",
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message:      &log.MessageEvent{Type: log.MessageTypeResponse, MessageID: 1, OK: &ok},
	})
	logger.Log(log.Event{
		Timestamp:    base.Add(40 * time.Millisecond),
		ConnectionID: "conn-b",
		Direction:    log.DirectionIn,
		Layer:        log.LayerEngine,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: "connecting",
			NewState: "connected",
		},
	})
	logger.Log(log.Event{
		Timestamp:    base.Add(60 * time.Millisecond),
		ConnectionID: "conn-b",
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		Error:        &log.ErrorEventData{Layer: log.LayerWire, Message: "decode frame"},
	})
}

func TestRunView(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.clog")
	writeFixture(t, path)

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{}, &buf); err != nil {
		t.Fatalf("RunView: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Method: connect") {
		t.Errorf("expected request event in view, got: %s", output)
	}
	if !strings.Contains(output, "connecting -> connected") {
		t.Errorf("expected state transition in view, got: %s", output)
	}

	// Layer filter narrows the output.
	engine := log.LayerEngine
	buf.Reset()
	if err := RunView(path, ViewFilter{Layer: &engine}, &buf); err != nil {
		t.Fatalf("RunView filtered: %v", err)
	}
	if strings.Contains(buf.String(), "Method: connect") {
		t.Errorf("wire events should be filtered out, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "ENGINE") {
		t.Errorf("expected engine events to remain, got: %s", buf.String())
	}
}

func TestRunExportJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.clog")
	writeFixture(t, path)

	out := filepath.Join(dir, "out.jsonl")
	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	data, err := readFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(data), "\n")
	if len(lines) != 4 {
		t.Errorf("expected 4 JSONL lines, got %d", len(lines))
	}
	if !strings.Contains(data, `"connect"`) {
		t.Errorf("expected method in JSONL export, got: %s", data)
	}
}

func TestRunExportCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.clog")
	writeFixture(t, path)

	out := filepath.Join(dir, "out.csv")
	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	data, err := readFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(data), "\n")
	if len(lines) != 5 { // header + 4 events
		t.Errorf("expected header plus 4 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "timestamp,connection_id") {
		t.Errorf("unexpected CSV header: %s", lines[0])
	}
}

func TestRunExportUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.clog")
	writeFixture(t, path)

	if err := RunExport(path, "xml", ""); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRunFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.clog")
	writeFixture(t, path)

	out := filepath.Join(dir, "filtered.clog")
	err := RunFilter(path, FilterOptions{Output: out, ConnID: "conn-a"})
	if err != nil {
		t.Fatalf("RunFilter: %v", err)
	}

	reader, err := log.NewReader(out)
	if err != nil {
		t.Fatalf("open filtered file: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err != nil {
			break
		}
		if event.ConnectionID != "conn-a" {
			t.Errorf("unexpected connection %s in filtered output", event.ConnectionID)
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 filtered events, got %d", count)
	}
}

func TestRunStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.clog")
	writeFixture(t, path)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "Total Events: 4") {
		t.Errorf("expected total, got: %s", output)
	}
	if !strings.Contains(output, "Connections: 2") {
		t.Errorf("expected two connections, got: %s", output)
	}
	if !strings.Contains(output, "Requests:  1") {
		t.Errorf("expected request count, got: %s", output)
	}
	if !strings.Contains(output, "Gateway: ws://gw.local:8089/ws") {
		t.Errorf("expected gateway URL, got: %s", output)
	}
	if !strings.Contains(output, "Errors: 1") {
		t.Errorf("expected error count, got: %s", output)
	}
}
