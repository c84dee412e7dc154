package history

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/model"
	"github.com/flashjig/flashjig/supervisor"
)

type staticChecks struct {
	cfg   checks.Config
	err   error
	loads int
}

func (s *staticChecks) Load(ctx context.Context) (checks.Config, error) {
	s.loads++
	return s.cfg, s.err
}

func TestRecorder_WritesRun(t *testing.T) {
	root := t.TempDir()
	loader := &staticChecks{cfg: checks.Config{"VSC_V": true}}
	r := NewRecorder(zerolog.Nop(), root, 2, loader, WithRemoteHost("jig.local"))

	start := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	id := "0123456789abcdef0123456789abcdef"
	r.RunStarted(id, supervisor.CommandSpec{Path: "python3", Args: []string{"-u", "jig.py"}}, start)
	for _, ev := range []model.Event{
		model.ChannelSelected(1),
		model.RawLine("Selecting channel 1"),
		model.CheckResult(1, "VSC_V", true),
		model.FlashOutcome(1, true),
		model.ChannelSelected(2),
		model.CheckResult(2, "VSC_V", false),
		model.FlashOutcome(2, true),
		model.ToolError("warning: low voltage"),
		model.Complete(0),
		model.AllDone(),
	} {
		r.Observe(id, ev)
	}
	r.RunFinished(id, start.Add(90*time.Second))

	require.Equal(t, 2, loader.loads)

	runDir := filepath.Join(root, "20260314-092653-01234567")
	stdout, err := os.ReadFile(filepath.Join(runDir, "stdout.txt"))
	require.NoError(t, err)
	require.Equal(t, "Selecting channel 1\n", string(stdout))
	stderr, err := os.ReadFile(filepath.Join(runDir, "stderr.txt"))
	require.NoError(t, err)
	require.Equal(t, "warning: low voltage\n", string(stderr))

	entries, err := LoadEntries(zerolog.Nop(), root)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	run := entries[0].Run
	require.Equal(t, runDir, entries[0].FullPath)
	require.Equal(t, id, run.ID)
	require.Equal(t, []string{"python3", "-u", "jig.py"}, run.Args)
	require.Equal(t, "jig.local", run.RemoteHost)
	require.Equal(t, 0, run.ExitCode)
	require.Equal(t, 90*time.Second, run.Duration)
	require.False(t, run.Cancelled)
	require.Empty(t, run.Fatal)
	require.Equal(t, model.BoardPass, run.Boards[0].Status)
	require.Equal(t, model.BoardFail, run.Boards[1].Status)
	require.Equal(t, 1, run.Summary.Passed)
	require.Equal(t, 1, run.Summary.Failed)
	require.Equal(t, map[string]bool{"VSC_V": true}, run.RequiredChecks)
	require.Len(t, run.Artifacts, 2)
}

func TestRecorder_FatalRunWithoutComplete(t *testing.T) {
	root := t.TempDir()
	r := NewRecorder(zerolog.Nop(), root, 6, &staticChecks{err: errors.New("db gone")})

	start := time.Now()
	r.RunStarted("feedface", supervisor.CommandSpec{Path: "/missing/python3"}, start)
	r.Observe("feedface", model.Fatal("failed to start /missing/python3"))
	r.Observe("feedface", model.AllDone())
	r.RunFinished("feedface", start.Add(time.Millisecond))

	entries, err := LoadEntries(zerolog.Nop(), root)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	run := entries[0].Run
	require.Equal(t, -1, run.ExitCode)
	require.Equal(t, "failed to start /missing/python3", run.Fatal)
	require.Equal(t, 6, run.Summary.Untested)
	require.Nil(t, run.Summary.ExitCode)
	// The selection could not be read, so every known check counts.
	require.Equal(t, map[string]bool(checks.Defaults()), run.RequiredChecks)
	require.Empty(t, run.Artifacts)
}

func TestRecorder_IgnoresUnknownRuns(t *testing.T) {
	r := NewRecorder(zerolog.Nop(), t.TempDir(), 6, &staticChecks{})
	r.Observe("nope", model.AllDone())
	r.RunFinished("nope", time.Now())
}

func TestRecorder_WithSupervisor(t *testing.T) {
	root := t.TempDir()
	r := NewRecorder(zerolog.Nop(), root, 6, &staticChecks{cfg: checks.Defaults()})
	sup := supervisor.New(zerolog.Nop(), supervisor.CommandSpec{
		Path: "/bin/sh",
		Args: []string{"-c", "echo 'Selecting channel 3'; echo 'Communication error'; sleep 30"},
	}, supervisor.WithObserver(r))

	run, err := sup.Start(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		ev, err := run.Next(ctx)
		require.NoError(t, err)
		if ev.Type == model.EventFlashFailed {
			break
		}
	}
	require.NoError(t, sup.Cancel())
	for {
		_, err := run.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}

	entries, err := LoadEntries(zerolog.Nop(), root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Run.Cancelled)
	require.Equal(t, -1, entries[0].Run.ExitCode)
	require.Equal(t, model.BoardFail, entries[0].Run.Boards[2].Status)
}

func TestLoadEntries(t *testing.T) {
	root := t.TempDir()

	write := func(dir, content string) {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(root, dir, "run.json"), []byte(content), 0644))
	}
	write("a", `{"id":"aaaa1111","timestamp":"2026-01-01T10:00:00Z"}`)
	write("b", `{"id":"bbbb2222","timestamp":"2026-01-02T10:00:00Z"}`)
	write("c", `{"id":"aaaa3333","timestamp":"2026-01-03T10:00:00Z"}`)
	write("broken", `{`)

	entries, err := LoadEntries(zerolog.Nop(), root)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "aaaa3333", entries[0].Run.ID)
	require.Equal(t, "aaaa1111", entries[2].Run.ID)

	e, err := Find(entries, "bbbb")
	require.NoError(t, err)
	require.Equal(t, "bbbb2222", e.Run.ID)

	_, err = Find(entries, "aaaa")
	require.ErrorContains(t, err, "ambiguous")
	_, err = Find(entries, "ffff")
	require.ErrorContains(t, err, "no run found")

	entries, err = LoadEntries(zerolog.Nop(), filepath.Join(root, "missing"))
	require.NoError(t, err)
	require.Empty(t, entries)
}
