package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rfoltyns/esfailover/internal/config"
	"github.com/rfoltyns/esfailover/internal/failover"
	"github.com/rfoltyns/esfailover/internal/runtime"
)

func seedStore(t *testing.T, seqID int64, payloads ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "store")
	cfg := cfgpkg.Default()
	cfg.Failover.FileName = dir
	cfg.Failover.Fsync = "never"

	rt, err := runtime.Open(runtime.Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	p, err := rt.OpenPolicy(context.Background(), seqID)
	if err != nil {
		t.Fatalf("open policy: %v", err)
	}
	for _, pl := range payloads {
		if !p.Deliver(failover.NewFailedItem("logs", []byte(pl), nil)) {
			t.Fatalf("deliver %q failed", pl)
		}
	}
	if err := p.Stop(time.Second, false); err != nil {
		t.Fatalf("stop: %v", err)
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func TestInspectListsSequences(t *testing.T) {
	dir := seedStore(t, 2, `{"n":1}`, `{"n":2}`)

	out, err := run(t, "inspect", "--file", dir)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one sequence line and a summary, got: %q", out)
	}
	var view sequenceView
	if err := json.Unmarshal([]byte(lines[0]), &view); err != nil {
		t.Fatalf("decode %q: %v", lines[0], err)
	}
	if view.SeqID != 2 || view.Queued != 2 || view.OwnerID != 0 {
		t.Fatalf("view = %+v", view)
	}
	if !strings.HasPrefix(lines[1], "entries: ") {
		t.Fatalf("missing summary: %q", lines[1])
	}
}

func TestReplayDrainsQueue(t *testing.T) {
	dir := seedStore(t, 1, `{"n":1}`, "plain text", `{"n":3}`)

	out, err := run(t, "replay", "--file", dir, "--seq-id", "1", "--batch-size", "2")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("replayed %d lines: %q", len(lines), out)
	}
	var rec failover.ItemRecord
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Target != "logs" || rec.Raw != "plain text" {
		t.Fatalf("record = %+v", rec)
	}
	if err := json.Unmarshal([]byte(lines[2]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(rec.Payload) != `{"n":3}` {
		t.Fatalf("payload = %s", rec.Payload)
	}

	out, err = run(t, "inspect", "--file", dir)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, `"queued":0`) {
		t.Fatalf("queue not drained: %q", out)
	}
}

func TestPurge(t *testing.T) {
	dir := seedStore(t, 5)

	out, err := run(t, "purge", "--file", dir, "--seq-id", "5")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if !strings.Contains(out, "purged sequence 5") {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := run(t, "purge", "--file", dir, "--seq-id", "5"); err == nil {
		t.Fatalf("second purge should fail")
	}
	if _, err := run(t, "purge", "--file", dir); err == nil {
		t.Fatalf("purge without --seq-id should fail")
	}
}

func TestBadConfigPath(t *testing.T) {
	_, err := run(t, "inspect", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing config")
	}
	if !strings.Contains(fmt.Sprint(err), "missing.yaml") {
		t.Fatalf("error does not name the file: %v", err)
	}
}
