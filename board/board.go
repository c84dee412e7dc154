// Package board folds progress events into per-board lifecycle state.
package board

import (
	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/model"
)

// State is an immutable snapshot of the board bank. Reduce never modifies a
// State it was given.
type State struct {
	Boards []model.Board `json:"boards"`
	// Board the jig is currently working on, 0 if none
	Active int `json:"active"`
	// Set once the tool has exited
	Summary *model.Summary `json:"summary,omitempty"`
	// Last diagnostic or error message
	LastError string `json:"last_error,omitempty"`
	// Message of the error that ended the run
	Fatal string `json:"fatal,omitempty"`
	// Set when the end-of-stream marker was seen
	Done bool `json:"done"`
}

// NewState returns n untested boards, each seeded with names as failed checks.
func NewState(n int, names []string) State {
	boards := make([]model.Board, n)
	for i := range boards {
		checks := make([]model.Check, len(names))
		for j, name := range names {
			checks[j] = model.Check{Name: name}
		}
		boards[i] = model.Board{Index: i + 1, Status: model.BoardUntested, Checks: checks}
	}
	return State{Boards: boards}
}

// Board returns board n (1-based).
func (s State) Board(n int) (model.Board, bool) {
	if n < 1 || n > len(s.Boards) {
		return model.Board{}, false
	}
	return s.Boards[n-1], true
}

// Reduce applies ev to s using req to aggregate pass verdicts and returns the
// resulting state. Events naming a board outside the bank are ignored.
func Reduce(s State, ev model.Event, req checks.Config) State {
	switch ev.Type {
	case model.EventChannelSelected, model.EventFlashing:
		if !s.inRange(ev.PCB) {
			return s
		}
		s.Active = ev.PCB
		if s.Boards[ev.PCB-1].Status == model.BoardUntested {
			s.Boards = s.withBoard(ev.PCB, func(b *model.Board) {
				b.Status = model.BoardFlashing
			})
		}

	case model.EventCheckResult:
		if !s.inRange(ev.PCB) || ev.Check == "" {
			return s
		}
		s.Boards = s.withBoard(ev.PCB, func(b *model.Board) {
			for i := range b.Checks {
				if b.Checks[i].Name == ev.Check {
					b.Checks[i].Passed = ev.CheckPassed()
					return
				}
			}
			b.Checks = append(b.Checks, model.Check{Name: ev.Check, Passed: ev.CheckPassed()})
		})

	case model.EventFlashFailed:
		if !s.inRange(ev.PCB) {
			return s
		}
		s.Boards = s.withBoard(ev.PCB, func(b *model.Board) {
			b.Status = model.BoardFail
		})
		s.Active = s.nextUntested(ev.PCB)

	case model.EventFlashComplete:
		if !s.inRange(ev.PCB) {
			return s
		}
		s.Boards = s.withBoard(ev.PCB, func(b *model.Board) {
			if RequiredPassed(*b, req) {
				b.Status = model.BoardPass
			} else {
				b.Status = model.BoardFail
			}
		})
		s.Active = s.nextUntested(ev.PCB)

	case model.EventComplete:
		sum := Summarize(s.Boards)
		code := ev.ExitCode()
		sum.ExitCode = &code
		s.Summary = &sum

	case model.EventError:
		s.LastError = ev.Message
		if ev.Fatal {
			s.Fatal = ev.Message
		}

	case model.EventAllDone:
		s.Done = true
	}
	return s
}

// RequiredPassed reports whether every required check on b passed. A board
// with no required checks passes.
func RequiredPassed(b model.Board, req checks.Config) bool {
	for _, c := range b.Checks {
		if req.Required(c.Name) && !c.Passed {
			return false
		}
	}
	return true
}

// Summarize counts verdicts over boards.
func Summarize(boards []model.Board) model.Summary {
	var sum model.Summary
	for _, b := range boards {
		switch b.Status {
		case model.BoardPass:
			sum.Passed++
		case model.BoardFail:
			sum.Failed++
		case model.BoardFlashing:
			sum.Unresolved++
		}
	}
	sum.Untested = len(boards) - sum.Passed - sum.Failed
	return sum
}

func (s State) inRange(n int) bool {
	return n >= 1 && n <= len(s.Boards)
}

// withBoard returns a copy of the board slice with board n replaced by the
// result of fn applied to a deep copy of it.
func (s State) withBoard(n int, fn func(*model.Board)) []model.Board {
	boards := make([]model.Board, len(s.Boards))
	copy(boards, s.Boards)

	b := boards[n-1]
	b.Checks = append([]model.Check(nil), b.Checks...)
	fn(&b)
	boards[n-1] = b
	return boards
}

// nextUntested returns the first untested board after n, wrapping around the
// bank, or 0 when every board has been visited.
func (s State) nextUntested(n int) int {
	total := len(s.Boards)
	for i := 1; i <= total; i++ {
		idx := (n-1+i)%total + 1
		if s.Boards[idx-1].Status == model.BoardUntested {
			return idx
		}
	}
	return 0
}
