package cli

// This file renders board state for the terminal.

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/model"
)

var (
	passColor     = lipgloss.Color("78")  // Green
	failColor     = lipgloss.Color("196") // Red
	flashingColor = lipgloss.Color("214") // Orange
	dimColor      = lipgloss.Color("245") // Gray

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	passStyle   = lipgloss.NewStyle().Foreground(passColor).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(failColor).Bold(true)
	activeStyle = lipgloss.NewStyle().Foreground(flashingColor).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(dimColor)
)

const boardColumnWidth = 8

func statusStyle(s model.BoardStatus) lipgloss.Style {
	switch s {
	case model.BoardPass:
		return passStyle
	case model.BoardFail:
		return failStyle
	case model.BoardFlashing:
		return activeStyle
	}
	return dimStyle
}

// renderBoards renders one column per board and one row per check. Checks
// that are not required are dimmed.
func renderBoards(boards []model.Board, req checks.Config) string {
	names := checkNames(boards)

	nameWidth := len("Status")
	for _, name := range names {
		nameWidth = max(nameWidth, lipgloss.Width(name))
	}
	nameCell := lipgloss.NewStyle().Width(nameWidth + 2)
	cell := lipgloss.NewStyle().Width(boardColumnWidth)

	var b strings.Builder

	row := []string{nameCell.Render(headerStyle.Render("Check"))}
	for _, board := range boards {
		row = append(row, cell.Render(headerStyle.Render(fmt.Sprintf("PCB %d", board.Index))))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
	b.WriteString("\n")

	for _, name := range names {
		label := name
		if !req.Required(name) {
			label = dimStyle.Render(name)
		}
		row := []string{nameCell.Render(label)}
		for _, board := range boards {
			row = append(row, cell.Render(checkMark(board, name)))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
		b.WriteString("\n")
	}

	row = []string{nameCell.Render(headerStyle.Render("Status"))}
	for _, board := range boards {
		row = append(row, cell.Render(statusStyle(board.Status).Render(strings.ToUpper(string(board.Status)))))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
	b.WriteString("\n")

	return b.String()
}

func checkMark(board model.Board, name string) string {
	for _, c := range board.Checks {
		if c.Name != name {
			continue
		}
		if board.Status == model.BoardUntested {
			return dimStyle.Render("·")
		}
		if c.Passed {
			return passStyle.Render("✓")
		}
		return failStyle.Render("✗")
	}
	return dimStyle.Render("-")
}

// checkNames returns every check name seen on any board, in first-seen order.
func checkNames(boards []model.Board) []string {
	seen := map[string]bool{}
	var names []string
	for _, board := range boards {
		for _, c := range board.Checks {
			if !seen[c.Name] {
				seen[c.Name] = true
				names = append(names, c.Name)
			}
		}
	}
	return names
}

func renderSummary(sum model.Summary) string {
	parts := []string{
		passStyle.Render(fmt.Sprintf("%d passed", sum.Passed)),
		failStyle.Render(fmt.Sprintf("%d failed", sum.Failed)),
		dimStyle.Render(fmt.Sprintf("%d untested", sum.Untested)),
	}
	if sum.Unresolved > 0 {
		parts = append(parts, activeStyle.Render(fmt.Sprintf("%d unresolved", sum.Unresolved)))
	}
	line := strings.Join(parts, ", ")
	if sum.ExitCode != nil {
		line += dimStyle.Render(fmt.Sprintf("  (exit %d)", *sum.ExitCode))
	}
	return line
}
