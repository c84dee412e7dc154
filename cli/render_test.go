package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/model"
)

func TestCheckNames(t *testing.T) {
	boards := []model.Board{
		{Index: 1, Checks: []model.Check{{Name: "RTC"}, {Name: "Flash ID"}}},
		{Index: 2, Checks: []model.Check{{Name: "Flash ID"}, {Name: "Custom"}}},
	}
	require.Equal(t, []string{"RTC", "Flash ID", "Custom"}, checkNames(boards))
}

func TestCheckMark(t *testing.T) {
	untested := model.Board{Status: model.BoardUntested, Checks: []model.Check{{Name: "RTC"}}}
	passed := model.Board{Status: model.BoardPass, Checks: []model.Check{{Name: "RTC", Passed: true}}}
	failed := model.Board{Status: model.BoardFail, Checks: []model.Check{{Name: "RTC"}}}

	require.Contains(t, checkMark(untested, "RTC"), "·")
	require.Contains(t, checkMark(passed, "RTC"), "✓")
	require.Contains(t, checkMark(failed, "RTC"), "✗")
	require.Contains(t, checkMark(passed, "Other"), "-")
}

func TestRenderBoards(t *testing.T) {
	boards := []model.Board{
		{Index: 1, Status: model.BoardPass, Checks: []model.Check{{Name: "RTC", Passed: true}}},
		{Index: 2, Status: model.BoardFlashing, Checks: []model.Check{{Name: "RTC"}}},
	}
	out := renderBoards(boards, checks.Config{"RTC": true})
	require.Contains(t, out, "PCB 1")
	require.Contains(t, out, "PCB 2")
	require.Contains(t, out, "RTC")
	require.Contains(t, out, "PASS")
	require.Contains(t, out, "FLASHING")
}

func TestRenderSummary(t *testing.T) {
	code := 0
	out := renderSummary(model.Summary{Passed: 5, Failed: 1, ExitCode: &code})
	require.Contains(t, out, "5 passed")
	require.Contains(t, out, "1 failed")
	require.Contains(t, out, "0 untested")
	require.Contains(t, out, "(exit 0)")
	require.NotContains(t, out, "unresolved")

	out = renderSummary(model.Summary{Unresolved: 2})
	require.Contains(t, out, "2 unresolved")
}
