package history

// This file contains run recording functionality for saving run metadata and
// output to the history directory.

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flashjig/flashjig/board"
	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/model"
	"github.com/flashjig/flashjig/supervisor"
)

// CheckLoader provides the required-check selection at aggregation time.
type CheckLoader interface {
	Load(ctx context.Context) (checks.Config, error)
}

// Recorder is a supervisor observer that writes one history directory per
// run.
type Recorder struct {
	logger     zerolog.Logger
	root       string
	boards     int
	checks     CheckLoader
	remoteHost string

	mu   sync.Mutex
	runs map[string]*recording
}

type recording struct {
	record  model.RunRecord
	machine *board.Machine
	// selection used at the last flash_complete
	required checks.Config
	stdout   strings.Builder
	stderr   strings.Builder
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRemoteHost records the host the script runs on.
func WithRemoteHost(host string) RecorderOption {
	return func(r *Recorder) {
		r.remoteHost = host
	}
}

func NewRecorder(logger zerolog.Logger, root string, boards int, loader CheckLoader, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		logger: logger,
		root:   root,
		boards: boards,
		checks: loader,
		runs:   map[string]*recording{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ supervisor.Observer = (*Recorder)(nil)

func (r *Recorder) RunStarted(id string, spec supervisor.CommandSpec, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[id] = &recording{
		record: model.RunRecord{
			ID:         id,
			Timestamp:  at,
			Args:       append([]string{spec.Path}, spec.Args...),
			RemoteHost: r.remoteHost,
			ExitCode:   -1,
		},
		machine: board.NewMachine(r.boards, model.KnownChecks),
	}
}

func (r *Recorder) Observe(id string, ev model.Event) {
	r.mu.Lock()
	rec, ok := r.runs[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	var req checks.Config
	if ev.Type == model.EventFlashComplete {
		req = r.requiredChecks()
		rec.required = req
	}
	rec.machine.Apply(ev, req)

	switch ev.Type {
	case model.EventRawOutput:
		rec.stdout.WriteString(ev.Message)
		rec.stdout.WriteByte('\n')
	case model.EventError:
		if ev.Fatal {
			if ev.Message == supervisor.KilledMessage {
				rec.record.Cancelled = true
			} else {
				rec.record.Fatal = ev.Message
			}
			return
		}
		rec.stderr.WriteString(ev.Message)
		rec.stderr.WriteByte('\n')
	case model.EventComplete:
		rec.record.ExitCode = ev.ExitCode()
	}
}

func (r *Recorder) RunFinished(id string, at time.Time) {
	r.mu.Lock()
	rec, ok := r.runs[id]
	delete(r.runs, id)
	r.mu.Unlock()
	if !ok {
		return
	}

	state := rec.machine.Snapshot()
	rec.record.Duration = at.Sub(rec.record.Timestamp)
	rec.record.Boards = state.Boards
	if state.Summary != nil {
		rec.record.Summary = *state.Summary
	} else {
		rec.record.Summary = board.Summarize(state.Boards)
	}
	if rec.required == nil {
		rec.required = r.requiredChecks()
	}
	rec.record.RequiredChecks = rec.required

	runDir, err := r.write(rec)
	if err != nil {
		r.logger.Warn().Err(err).Str("run", id).Msg("Failed to record run")
		return
	}
	r.logger.Debug().Str("dir", runDir).Msg("Recorded run")
}

func (r *Recorder) requiredChecks() checks.Config {
	cfg, err := r.checks.Load(context.Background())
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to load required checks, requiring all")
		return checks.Defaults()
	}
	return cfg
}

func (r *Recorder) write(rec *recording) (string, error) {
	timestamp := rec.record.Timestamp.Format("20060102-150405")
	shortID := rec.record.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	runDir := filepath.Join(r.root, fmt.Sprintf("%s-%s", timestamp, shortID))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	outputs := []struct {
		typ  model.ArtifactType
		file string
		data string
	}{
		{model.ArtifactTypeStdout, "stdout.txt", rec.stdout.String()},
		{model.ArtifactTypeStderr, "stderr.txt", rec.stderr.String()},
	}
	for _, o := range outputs {
		if o.data == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(runDir, o.file), []byte(o.data), 0644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", o.file, err)
		}
		rec.record.Artifacts = append(rec.record.Artifacts, model.Artifact{
			Type: o.typ,
			Size: uint64(len(o.data)),
			File: o.file,
		})
	}

	data, err := json.MarshalIndent(rec.record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, recordFile), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write run record: %w", err)
	}

	return runDir, nil
}
