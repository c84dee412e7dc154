package supervisor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/flashjig/flashjig/model"
)

func shell(script string) CommandSpec {
	return CommandSpec{Path: "/bin/sh", Args: []string{"-c", script}}
}

func drain(t *testing.T, run *Run) []model.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var events []model.Event
	for {
		ev, err := run.Next(ctx)
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func without(events []model.Event, typ model.EventType) []model.Event {
	var out []model.Event
	for _, ev := range events {
		if ev.Type != typ {
			out = append(out, ev)
		}
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []string
	events   map[string][]model.Event
}

func (o *recordingObserver) RunStarted(id string, spec CommandSpec, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, id)
}

func (o *recordingObserver) Observe(id string, ev model.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		o.events = map[string][]model.Event{}
	}
	o.events[id] = append(o.events[id], ev)
}

func (o *recordingObserver) RunFinished(id string, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, id)
}

func TestStart_NormalRun(t *testing.T) {
	obs := &recordingObserver{}
	s := New(zerolog.Nop(), shell(`
echo "=== Selecting channel 1 ==="
echo "RTC configured"
echo "oops" >&2
echo "Data saved"
printf "Selecting channel 2"
exit 3
`), WithObserver(obs))

	run, err := s.Start(context.Background())
	require.NoError(t, err)
	require.Len(t, run.ID(), 32)

	events := drain(t, run)

	require.Equal(t, []model.Event{
		model.ChannelSelected(1),
		model.RawLine("=== Selecting channel 1 ==="),
		model.CheckResult(1, "RTC configured", true),
		model.RawLine("RTC configured"),
		model.FlashOutcome(1, true),
		model.RawLine("Data saved"),
		model.ChannelSelected(2),
		model.RawLine("Selecting channel 2"),
		model.Complete(3),
		model.AllDone(),
	}, without(events, model.EventError))
	require.Contains(t, events, model.ToolError("oops"))
	require.Equal(t, model.AllDone(), events[len(events)-1])

	require.False(t, s.Status().Running)
	require.ErrorIs(t, s.Cancel(), ErrNoActiveSession)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Equal(t, []string{run.ID()}, obs.started)
	require.Equal(t, []string{run.ID()}, obs.finished)
	require.Equal(t, events, obs.events[run.ID()])
}

func TestStart_SpawnFailure(t *testing.T) {
	s := New(zerolog.Nop(), CommandSpec{Path: "/nonexistent/python3", Args: []string{"jig.py"}})

	run, err := s.Start(context.Background())
	require.NoError(t, err)

	events := drain(t, run)
	require.Len(t, events, 2)
	require.Equal(t, model.EventError, events[0].Type)
	require.True(t, events[0].Fatal)
	require.Contains(t, events[0].Message, "/nonexistent/python3")
	require.Equal(t, model.AllDone(), events[1])

	require.False(t, s.Status().Running)
	require.ErrorIs(t, s.Cancel(), ErrNoActiveSession)

	// A failed spawn leaves no session behind.
	run, err = s.Start(context.Background())
	require.NoError(t, err)
	require.Len(t, drain(t, run), 2)
}

func TestStart_CheckFailure(t *testing.T) {
	spec := shell("echo should not run")
	spec.Check = func(ctx context.Context) error {
		return errors.New("jig script not available")
	}
	s := New(zerolog.Nop(), spec)

	run, err := s.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.Event{
		model.Fatal("jig script not available"),
		model.AllDone(),
	}, drain(t, run))
}

func TestStart_AlreadyRunning(t *testing.T) {
	s := New(zerolog.Nop(), shell("echo 'Selecting channel 2'; sleep 30"))

	run, err := s.Start(context.Background())
	require.NoError(t, err)

	_, err = s.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		return s.Status().Channel == 2
	}, 5*time.Second, 10*time.Millisecond)

	st := s.Status()
	require.True(t, st.Running)
	require.Equal(t, run.ID(), st.RunID)
	require.NotZero(t, st.PID)
	require.NotNil(t, st.StartedAt)

	require.NoError(t, s.Cancel())
	drain(t, run)
}

func TestCancel_DuringCheckIsImmediate(t *testing.T) {
	spec := shell("echo should not run")
	checking := make(chan struct{})
	spec.Check = func(ctx context.Context) error {
		close(checking)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}
	s := New(zerolog.Nop(), spec)

	started := make(chan *Run, 1)
	go func() {
		run, _ := s.Start(context.Background())
		started <- run
	}()

	<-checking
	st := s.Status()
	require.True(t, st.Running)
	require.Zero(t, st.PID)

	_, err := s.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	begin := time.Now()
	require.NoError(t, s.Cancel())
	require.Less(t, time.Since(begin), time.Second)
	require.False(t, s.Status().Running)

	run := <-started
	require.Equal(t, []model.Event{
		model.Fatal(KilledMessage),
		model.Complete(-1),
		model.AllDone(),
	}, drain(t, run))
	require.ErrorIs(t, s.Cancel(), ErrNoActiveSession)
}

func TestCancel_DuringCheckIgnoringContext(t *testing.T) {
	spec := shell("echo should not run")
	checking := make(chan struct{})
	spec.Check = func(ctx context.Context) error {
		close(checking)
		time.Sleep(300 * time.Millisecond)
		return nil
	}
	s := New(zerolog.Nop(), spec)

	started := make(chan *Run, 1)
	go func() {
		run, _ := s.Start(context.Background())
		started <- run
	}()

	<-checking
	begin := time.Now()
	require.NoError(t, s.Cancel())
	require.Less(t, time.Since(begin), 200*time.Millisecond)

	// The check passed after the cancel, but the script is never spawned.
	events := drain(t, <-started)
	require.Equal(t, []model.Event{
		model.Fatal(KilledMessage),
		model.Complete(-1),
		model.AllDone(),
	}, events)
}

func TestCancel_Twice(t *testing.T) {
	s := New(zerolog.Nop(), shell("sleep 30 & sleep 30; wait"))

	run, err := s.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Cancel())
	require.False(t, s.Status().Running)
	require.ErrorIs(t, s.Cancel(), ErrNoActiveSession)

	events := drain(t, run)
	require.GreaterOrEqual(t, len(events), 3)
	tail := events[len(events)-3:]
	require.Equal(t, model.Fatal("process killed"), tail[0])
	require.Equal(t, model.Complete(-1), tail[1])
	require.Equal(t, model.AllDone(), tail[2])

	// The session is free again.
	run, err = s.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Cancel())
	drain(t, run)
}

func TestRunCancel_OnlyAffectsItsOwnRun(t *testing.T) {
	s := New(zerolog.Nop(), shell("sleep 30"))

	first, err := s.Start(context.Background())
	require.NoError(t, err)
	first.Cancel()
	drain(t, first)

	second, err := s.Start(context.Background())
	require.NoError(t, err)
	first.Cancel()
	require.True(t, s.Status().Running)
	require.Equal(t, second.ID(), s.Status().RunID)

	second.Cancel()
	require.False(t, s.Status().Running)
	drain(t, second)
}

func TestStart_SlowConsumerDropsRawOutputOnly(t *testing.T) {
	s := New(zerolog.Nop(), shell(`
i=0
while [ $i -lt 50 ]; do echo "noise $i"; i=$((i+1)); done
echo "Selecting channel 1"
echo "Data saved"
`), WithQueueSize(8))

	run, err := s.Start(context.Background())
	require.NoError(t, err)

	// Let the script finish before reading anything.
	require.Eventually(t, func() bool {
		return !s.Status().Running
	}, 5*time.Second, 10*time.Millisecond)

	events := drain(t, run)
	require.Equal(t, []model.Event{
		model.ChannelSelected(1),
		model.FlashOutcome(1, true),
		model.Complete(0),
		model.AllDone(),
	}, without(events, model.EventRawOutput))
	require.Equal(t, 50+2-8, run.Dropped())

	var raw []model.Event
	for _, ev := range events {
		if !ev.IsLifecycle() {
			raw = append(raw, ev)
		}
	}
	require.Len(t, raw, 8)
	require.Equal(t, model.RawLine("noise 44"), raw[0])
	require.Equal(t, model.RawLine("Selecting channel 1"), raw[6])
	require.Equal(t, model.RawLine("Data saved"), raw[7])
}
