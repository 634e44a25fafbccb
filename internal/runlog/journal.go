// Package runlog keeps a JSONL journal of run events under the state directory.
package runlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxBytes   = int64(4 << 20) // 4 MiB
	defaultMaxBackups = 3
)

// Event kinds.
const (
	KindRunStarted         = "run_started"
	KindPlanParsed         = "plan_parsed"
	KindStepStarted        = "step_started"
	KindStepCompleted      = "step_completed"
	KindStepRetried        = "step_retried"
	KindStepFailed         = "step_failed"
	KindEvidenceUnresolved = "evidence_unresolved"
	KindRunSolved          = "run_solved"
	KindRunFailed          = "run_failed"
)

type Entry struct {
	CreatedAt string `json:"created_at"`

	RunID string `json:"run_id"`
	Kind  string `json:"kind"`

	// Status is "success" or "failure".
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	EvidenceID string `json:"evidence_id,omitempty"`
	Tool       string `json:"tool,omitempty"`
	Attempt    int    `json:"attempt,omitempty"`

	// Detail is a small, kind-specific object.
	Detail map[string]any `json:"detail,omitempty"`
}

type Options struct {
	Logger *slog.Logger
	// StateDir is the state directory (e.g. ~/.docplanner).
	StateDir string

	// MaxBytes is the rotation threshold for the active file.
	MaxBytes int64
	// MaxBackups keeps the latest N rotated files.
	MaxBackups int
}

// Journal appends entries to <state_dir>/runs/events.jsonl. A nil *Journal is a no-op.
type Journal struct {
	log *slog.Logger

	dir        string
	activePath string

	maxBytes   int64
	maxBackups int

	mu sync.Mutex
}

func New(opts Options) (*Journal, error) {
	stateDir := strings.TrimSpace(opts.StateDir)
	if stateDir == "" {
		return nil, errors.New("missing StateDir")
	}
	dir := filepath.Join(stateDir, "runs")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}

	activePath := filepath.Join(dir, "events.jsonl")
	f, err := os.OpenFile(activePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	_ = f.Close()

	return &Journal{
		log:        logger,
		dir:        dir,
		activePath: activePath,
		maxBytes:   maxBytes,
		maxBackups: maxBackups,
	}, nil
}

// Append writes one entry. Failures are logged, never returned: the journal
// must not fail a run.
func (j *Journal) Append(e Entry) {
	if j == nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if strings.TrimSpace(e.CreatedAt) == "" {
		e.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if strings.TrimSpace(e.Status) == "" {
		e.Status = "success"
	}

	f, err := os.OpenFile(j.activePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		j.log.Warn("runlog append failed", "error", err)
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&e); err != nil {
		j.log.Warn("runlog encode failed", "error", err)
		return
	}

	j.maybeRotateLocked()
}

// List returns up to limit entries, newest first. When runID is set only that
// run's entries are returned.
func (j *Journal) List(runID string, limit int) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 200
	}
	runID = strings.TrimSpace(runID)

	j.mu.Lock()
	files := j.listFilesLocked()
	j.mu.Unlock()

	out := make([]Entry, 0, limit)
	for _, path := range files {
		if len(out) >= limit {
			break
		}
		entries, err := readFileNewestFirst(path)
		if err != nil {
			j.log.Warn("runlog read failed", "path", path, "error", err)
			continue
		}
		for _, e := range entries {
			if runID != "" && e.RunID != runID {
				continue
			}
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (j *Journal) listFilesLocked() []string {
	// Newest first: active file, then rotated files.
	paths := []string{j.activePath}
	paths = append(paths, j.rotatedLocked(true)...)
	return paths
}

func (j *Journal) rotatedLocked(newestFirst bool) []string {
	ents, err := os.ReadDir(j.dir)
	if err != nil {
		return nil
	}
	var rotated []string
	for _, ent := range ents {
		if ent == nil || ent.IsDir() {
			continue
		}
		name := ent.Name()
		// events-<unix_ms>.jsonl
		if !strings.HasPrefix(name, "events-") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		rotated = append(rotated, filepath.Join(j.dir, name))
	}
	sort.Strings(rotated)
	if newestFirst {
		for a, b := 0, len(rotated)-1; a < b; a, b = a+1, b-1 {
			rotated[a], rotated[b] = rotated[b], rotated[a]
		}
	}
	return rotated
}

func (j *Journal) maybeRotateLocked() {
	st, err := os.Stat(j.activePath)
	if err != nil || st.Size() <= j.maxBytes {
		return
	}

	dst := filepath.Join(j.dir, fmt.Sprintf("events-%d.jsonl", time.Now().UnixMilli()))
	if err := os.Rename(j.activePath, dst); err != nil {
		j.log.Warn("runlog rotate failed", "error", err)
		return
	}
	if f, err := os.OpenFile(j.activePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600); err == nil {
		_ = f.Close()
	}

	rotated := j.rotatedLocked(false)
	if len(rotated) <= j.maxBackups {
		return
	}
	for _, p := range rotated[:len(rotated)-j.maxBackups] {
		_ = os.Remove(p)
	}
}

func readFileNewestFirst(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var entries []Entry
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for a, b := 0, len(entries)-1; a < b; a, b = a+1, b-1 {
		entries[a], entries[b] = entries[b], entries[a]
	}
	return entries, nil
}
