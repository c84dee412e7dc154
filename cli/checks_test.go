package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flashjig/flashjig/checks"
)

func TestParseCheckAssignments(t *testing.T) {
	cfg, err := parseCheckAssignments([]string{"RTC=false", "Flash ID = true", "a=b=1"})
	require.NoError(t, err)
	require.Equal(t, checks.Config{
		"RTC":      false,
		"Flash ID": true,
		"a=b":      true,
	}, cfg)
}

func TestParseCheckAssignments_Invalid(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"RTC"},
		{"=true"},
		{"RTC=maybe"},
	} {
		_, err := parseCheckAssignments(args)
		require.Error(t, err, "args %q", args)
	}
}

func TestRenderChecks(t *testing.T) {
	out := renderChecks(checks.Config{"RTC": true, "Custom": false})
	require.Contains(t, out, "Required checks")
	require.Contains(t, out, "[x]")
	require.Contains(t, out, "RTC")
	require.Contains(t, out, "[ ]")
	require.Contains(t, out, "Custom")
}

type fakeChecks struct {
	cfg      checks.Config
	set      []string
	replaced bool
}

func (f *fakeChecks) RequiredChecks(context.Context) (checks.Config, error) {
	return f.cfg, nil
}

func (f *fakeChecks) SetChecks(_ context.Context, cfg checks.Config) (checks.Config, error) {
	f.cfg = cfg
	f.replaced = true
	return cfg, nil
}

func (f *fakeChecks) SetCheck(_ context.Context, name string, required bool) error {
	f.cfg[name] = required
	f.set = append(f.set, name)
	return nil
}

func (f *fakeChecks) ToggleCheck(_ context.Context, name string) (bool, error) {
	f.cfg[name] = !f.cfg[name]
	return f.cfg[name], nil
}

func TestToggleCheck_RendersSelection(t *testing.T) {
	f := &fakeChecks{cfg: checks.Config{"RTC configured": true, "VSC_V": true}}

	out, err := toggleCheck(context.Background(), f, "VSC_V")
	require.NoError(t, err)
	require.False(t, f.cfg["VSC_V"])
	require.Equal(t, renderChecks(checks.Config{"RTC configured": true, "VSC_V": false}), out)
}

func TestSetChecks_PerCheck(t *testing.T) {
	f := &fakeChecks{cfg: checks.Config{"RTC configured": true, "VSC_V": true}}

	out, err := setChecks(context.Background(), f, checks.Config{"VSC_V": false}, false)
	require.NoError(t, err)
	require.False(t, f.replaced)
	require.Equal(t, []string{"VSC_V"}, f.set)
	require.Equal(t, checks.Config{"RTC configured": true, "VSC_V": false}, f.cfg)
	require.Equal(t, renderChecks(f.cfg), out)
}

func TestSetChecks_Replace(t *testing.T) {
	f := &fakeChecks{cfg: checks.Config{"RTC configured": true, "VSC_V": true}}

	out, err := setChecks(context.Background(), f, checks.Config{"VSC_V": false}, true)
	require.NoError(t, err)
	require.True(t, f.replaced)
	require.Empty(t, f.set)
	require.Equal(t, checks.Config{"VSC_V": false}, f.cfg)
	require.Equal(t, renderChecks(f.cfg), out)
}
