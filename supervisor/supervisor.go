// Package supervisor runs the jig script as a child process and turns its
// output into an ordered stream of progress events.
//
// At most one run is active at a time. A run ends when the script exits, when
// it is cancelled, or immediately when the script cannot be started; in every
// case its stream ends with an all_done event.
package supervisor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/flashjig/flashjig/jigscript"
	"github.com/flashjig/flashjig/model"
)

var (
	ErrAlreadyRunning  = errors.New("a flash run is already in progress")
	ErrNoActiveSession = errors.New("no active process")
)

const (
	DefaultQueueSize   = 1024
	DefaultKillTimeout = 5 * time.Second

	readChunkSize = 4096
)

// KilledMessage is the fatal error reported on the stream of a cancelled run.
const KilledMessage = "process killed"

// CommandSpec describes how to launch the jig script.
type CommandSpec struct {
	Path string
	Args []string
	Env  []string
	Dir  string
	// Check runs before the process is spawned. A non-nil error is reported
	// as a fatal spawn failure.
	Check func(ctx context.Context) error
}

// Observer receives every event of every run, in the order the run's own
// stream delivers them. Calls for one run are never concurrent.
type Observer interface {
	RunStarted(id string, spec CommandSpec, at time.Time)
	Observe(id string, ev model.Event)
	RunFinished(id string, at time.Time)
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(s *Supervisor) {
		s.observers = append(s.observers, o)
	}
}

// WithQueueSize bounds the number of raw output lines buffered per run.
func WithQueueSize(n int) Option {
	return func(s *Supervisor) {
		s.queueSize = n
	}
}

// WithKillTimeout bounds how long Cancel waits for a killed process to be
// reaped.
func WithKillTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.killTimeout = d
	}
}

// Supervisor owns the single run session.
type Supervisor struct {
	logger      zerolog.Logger
	spec        CommandSpec
	queueSize   int
	killTimeout time.Duration
	observers   []Observer

	mu      sync.Mutex
	session *session
}

// Status describes the active session, if any.
type Status struct {
	Running   bool       `json:"running"`
	RunID     string     `json:"run_id,omitempty"`
	PID       int        `json:"pid,omitempty"`
	Channel   int        `json:"channel,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// session is the active run. cmd is nil while the pre-spawn check runs.
type session struct {
	run       *Run
	cmd       *exec.Cmd
	started   time.Time
	channel   atomic.Int64
	cancelled atomic.Bool
	stopCheck context.CancelFunc
	reaped    chan struct{}
}

func New(logger zerolog.Logger, spec CommandSpec, opts ...Option) *Supervisor {
	s := &Supervisor{
		logger:      logger,
		spec:        spec,
		queueSize:   DefaultQueueSize,
		killTimeout: DefaultKillTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the jig script. It fails only with ErrAlreadyRunning; a
// script that cannot be started yields a Run whose stream reports the fatal
// error and ends.
//
// The session is claimed before the pre-spawn check runs, so a concurrent
// Start is rejected and Cancel aborts the start without waiting for the check.
func (s *Supervisor) Start(ctx context.Context) (*Run, error) {
	id, err := newRunID()
	if err != nil {
		return nil, err
	}
	run := &Run{id: id, q: newQueue(s.queueSize), observers: s.observers}
	run.cancel = func() { s.cancelRun(id) }

	checkCtx, stopCheck := context.WithCancel(ctx)
	defer stopCheck()

	sess := &session{
		run:       run,
		started:   time.Now(),
		stopCheck: stopCheck,
		reaped:    make(chan struct{}),
	}

	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.session = sess
	s.mu.Unlock()

	for _, o := range s.observers {
		o.RunStarted(id, s.spec, sess.started)
	}

	logger := s.logger.With().Str("run", id[:8]).Logger()

	if s.spec.Check != nil {
		if err := s.spec.Check(checkCtx); err != nil {
			if sess.cancelled.Load() {
				s.abortRun(logger, sess)
			} else {
				s.failRun(logger, sess, err)
			}
			return run, nil
		}
	}

	cmd := exec.Command(s.spec.Path, s.spec.Args...)
	cmd.Env = s.spec.Env
	cmd.Dir = s.spec.Dir
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.failRun(logger, sess, fmt.Errorf("failed to create stdout pipe: %w", err))
		return run, nil
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.failRun(logger, sess, fmt.Errorf("failed to create stderr pipe: %w", err))
		return run, nil
	}

	// Cancel either sees the process or prevents it from being started.
	s.mu.Lock()
	if sess.cancelled.Load() {
		s.mu.Unlock()
		s.abortRun(logger, sess)
		return run, nil
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		s.failRun(logger, sess, fmt.Errorf("failed to start %s: %w", s.spec.Path, err))
		return run, nil
	}
	sess.cmd = cmd
	s.mu.Unlock()

	logger.Info().
		Int("pid", cmd.Process.Pid).
		Strs("args", cmd.Args).
		Msg("Started jig script")

	go s.supervise(logger, sess, stdout, stderr)

	return run, nil
}

// Cancel kills the active process. The session is released before Cancel
// returns. It returns ErrNoActiveSession when nothing is running.
func (s *Supervisor) Cancel() error {
	sess, cmd := s.detach("")
	if sess == nil {
		return ErrNoActiveSession
	}
	s.kill(sess, cmd)
	return nil
}

func (s *Supervisor) cancelRun(id string) {
	if sess, cmd := s.detach(id); sess != nil {
		s.kill(sess, cmd)
	}
}

// detach releases the active session, or only the session of run id when id
// is set, and marks it cancelled.
func (s *Supervisor) detach(id string) (*session, *exec.Cmd) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil || (id != "" && sess.run.id != id) {
		return nil, nil
	}
	s.session = nil
	sess.cancelled.Store(true)
	return sess, sess.cmd
}

func (s *Supervisor) kill(sess *session, cmd *exec.Cmd) {
	logger := s.logger.With().Str("run", sess.run.id[:8]).Logger()

	if cmd == nil {
		// Not spawned yet; Start sees the flag and never spawns it.
		logger.Info().Msg("Cancelling jig script start")
		sess.stopCheck()
		return
	}

	logger.Info().Int("pid", cmd.Process.Pid).Msg("Killing jig script")

	if err := killProcess(cmd.Process); err != nil {
		logger.Warn().Err(err).Msg("Failed to kill jig script")
	}

	select {
	case <-sess.reaped:
	case <-time.After(s.killTimeout):
		logger.Warn().Dur("timeout", s.killTimeout).Msg("Killed jig script was not reaped in time")
	}
}

// Status reports the active session.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return Status{}
	}
	started := s.session.started
	st := Status{
		Running:   true,
		RunID:     s.session.run.id,
		Channel:   int(s.session.channel.Load()),
		StartedAt: &started,
	}
	if s.session.cmd != nil {
		st.PID = s.session.cmd.Process.Pid
	}
	return st
}

func (s *Supervisor) supervise(logger zerolog.Logger, sess *session, stdout, stderr io.Reader) {
	defer close(sess.reaped)

	var g errgroup.Group
	g.Go(func() error {
		return s.readPrimary(sess, stdout)
	})
	g.Go(func() error {
		return s.readDiagnostic(sess, stderr)
	})
	if err := g.Wait(); err != nil {
		logger.Warn().Err(err).Msg("Reading jig script output failed")
	}

	waitErr := sess.cmd.Wait()
	code := -1
	if sess.cmd.ProcessState != nil {
		code = sess.cmd.ProcessState.ExitCode()
	}

	s.release(sess)

	run := sess.run
	if sess.cancelled.Load() {
		run.emit(model.Fatal(KilledMessage))
	}
	run.emit(model.Complete(code))
	run.emit(model.AllDone())
	run.finish()

	logger.Info().
		Int("code", code).
		Bool("cancelled", sess.cancelled.Load()).
		AnErr("wait", waitErr).
		Int("dropped", run.Dropped()).
		Dur("duration", time.Since(sess.started)).
		Msg("Jig script finished")
}

func (s *Supervisor) readPrimary(sess *session, r io.Reader) error {
	parser := jigscript.NewParser(true)
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, ev := range parser.Feed(string(buf[:n])) {
				sess.run.emit(ev)
			}
			sess.channel.Store(int64(parser.Active()))
		}
		if err != nil {
			for _, ev := range parser.Flush() {
				sess.run.emit(ev)
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("stdout: %w", err)
		}
	}
}

func (s *Supervisor) readDiagnostic(sess *session, r io.Reader) error {
	var lines jigscript.LineBuffer
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range lines.Feed(string(buf[:n])) {
				for _, ev := range jigscript.DiagnosticEvents(line) {
					sess.run.emit(ev)
				}
			}
		}
		if err != nil {
			for _, ev := range jigscript.DiagnosticEvents(lines.Flush()) {
				sess.run.emit(ev)
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("stderr: %w", err)
		}
	}
}

// release frees the session if sess still holds it.
func (s *Supervisor) release(sess *session) {
	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	s.mu.Unlock()
}

func (s *Supervisor) failRun(logger zerolog.Logger, sess *session, err error) {
	s.release(sess)
	logger.Error().Err(err).Msg("Failed to start jig script")
	run := sess.run
	run.emit(model.Fatal(err.Error()))
	run.emit(model.AllDone())
	run.finish()
}

// abortRun ends a run cancelled before its process was spawned.
func (s *Supervisor) abortRun(logger zerolog.Logger, sess *session) {
	s.release(sess)
	logger.Info().Msg("Jig script start cancelled")
	run := sess.run
	run.emit(model.Fatal(KilledMessage))
	run.emit(model.Complete(-1))
	run.emit(model.AllDone())
	run.finish()
}

func newRunID() (string, error) {
	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", fmt.Errorf("failed to generate run ID: %w", err)
	}
	return hex.EncodeToString(idBytes), nil
}

// Run is the event stream of one run.
type Run struct {
	id        string
	q         *queue
	cancel    func()
	observers []Observer

	emitMu sync.Mutex
}

// ID returns the run's hex identifier.
func (r *Run) ID() string {
	return r.id
}

// Next blocks until the next event is available. It returns io.EOF after the
// final all_done event has been delivered.
func (r *Run) Next(ctx context.Context) (model.Event, error) {
	return r.q.pop(ctx)
}

// Cancel kills the process of this run if it is still the active one.
func (r *Run) Cancel() {
	r.cancel()
}

// Dropped returns the number of raw output lines discarded because the
// consumer fell behind.
func (r *Run) Dropped() int {
	return r.q.droppedCount()
}

func (r *Run) emit(ev model.Event) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.q.push(ev)
	for _, o := range r.observers {
		o.Observe(r.id, ev)
	}
}

// finish notifies observers and then ends the stream, so a consumer that sees
// io.EOF knows every observer has finished with the run.
func (r *Run) finish() {
	at := time.Now()
	for _, o := range r.observers {
		o.RunFinished(r.id, at)
	}
	r.q.close()
}
