package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/model"
	"github.com/flashjig/flashjig/server"
	"github.com/flashjig/flashjig/supervisor"
)

func newTestClient(t *testing.T, script string) (*Client, *supervisor.Supervisor) {
	t.Helper()

	store, err := checks.Open(filepath.Join(t.TempDir(), "checks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sup := supervisor.New(zerolog.Nop(), supervisor.CommandSpec{Path: "/bin/sh", Args: []string{"-c", script}})
	t.Cleanup(func() { _ = sup.Cancel() })

	ts := httptest.NewServer(server.New(zerolog.Nop(), sup, store).Handler())
	t.Cleanup(ts.Close)

	return New(zerolog.Nop(), ts.URL+"/"), sup
}

func TestStream(t *testing.T) {
	c, _ := newTestClient(t, `echo "Flashing board on channel 4"; echo "Timeout" ; exit 1`)

	var events []model.Event
	err := c.Stream(context.Background(), func(ev model.Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []model.Event{
		model.Flashing(4),
		model.RawLine("Flashing board on channel 4"),
		model.FlashOutcome(4, false),
		model.RawLine("Timeout"),
		model.Complete(1),
		model.AllDone(),
	}, events)
}

func TestStream_CallbackErrorStops(t *testing.T) {
	c, sup := newTestClient(t, `echo "Selecting channel 1"; sleep 30`)

	stop := errors.New("stop")
	err := c.Stream(context.Background(), func(ev model.Event) error {
		return stop
	})
	require.ErrorIs(t, err, stop)

	require.Eventually(t, func() bool {
		return !sup.Status().Running
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDecode(t *testing.T) {
	collect := func(input string, sse bool) ([]model.Event, error) {
		var events []model.Event
		err := Decode(strings.NewReader(input), sse, func(ev model.Event) error {
			events = append(events, ev)
			return nil
		})
		return events, err
	}

	events, err := collect("{\"type\":\"flashing\",\"pcb\":2}\n\n{\"type\":\"all_done\"}\n{\"type\":\"raw_output\"}\n", false)
	require.NoError(t, err)
	require.Equal(t, []model.Event{model.Flashing(2), model.AllDone()}, events)

	events, err = collect(": comment\ndata: {\"type\":\"flash_complete\",\"pcb\":1}\n\ndata:{\"type\":\"all_done\"}\n\n", true)
	require.NoError(t, err)
	require.Equal(t, []model.Event{model.FlashOutcome(1, true), model.AllDone()}, events)

	_, err = collect("{\"type\":\"flashing\",\"pcb\":2}\n", false)
	require.ErrorIs(t, err, ErrTruncated)

	_, err = collect("garbage\n", false)
	require.ErrorContains(t, err, "invalid event")
}

func TestKill(t *testing.T) {
	c, sup := newTestClient(t, "sleep 30")
	ctx := context.Background()

	resp, err := c.Kill(ctx)
	require.NoError(t, err)
	require.Equal(t, server.MessageNoActive, resp.Message)

	_, err = sup.Start(ctx)
	require.NoError(t, err)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.Running)

	resp, err = c.Kill(ctx)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, server.MessageKilled, resp.Message)
}

func TestChecks(t *testing.T) {
	c, _ := newTestClient(t, "true")
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	cfg, err := c.RequiredChecks(ctx)
	require.NoError(t, err)
	require.Equal(t, checks.Defaults(), cfg)

	required, err := c.ToggleCheck(ctx, "Ext NFC configured")
	require.NoError(t, err)
	require.False(t, required)

	require.NoError(t, c.SetCheck(ctx, "Buzzer tested", true))
	cfg, err = c.RequiredChecks(ctx)
	require.NoError(t, err)
	require.True(t, cfg.Required("Buzzer tested"))
	require.False(t, cfg.Required("Ext NFC configured"))

	cfg, err = c.SetChecks(ctx, checks.Config{"HACC initialized": false})
	require.NoError(t, err)
	require.False(t, cfg.Required("HACC initialized"))
	require.True(t, cfg.Required("Ext NFC configured"))
	require.False(t, cfg.Required("Buzzer tested"))
}

func TestStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"database is locked"}`)) //nolint:errcheck
	}))
	defer ts.Close()

	_, err := New(zerolog.Nop(), ts.URL).RequiredChecks(context.Background())
	require.ErrorContains(t, err, "database is locked")
}
