package model

// BoardStatus is the lifecycle status of a single board
type BoardStatus string

const (
	BoardUntested BoardStatus = "untested"
	BoardFlashing BoardStatus = "flashing"
	BoardPass     BoardStatus = "pass"
	BoardFail     BoardStatus = "fail"
)

// DefaultBoardCount is the size of the board bank on the jig.
const DefaultBoardCount = 6

// KnownChecks is the vocabulary of sub-checks reported by the jig script, in
// canonical report order.
var KnownChecks = []string{
	"RTC configured",
	"RTC initialized",
	"LACC initialized",
	"HACC initialized",
	"PSRAM initialized",
	"exFlash initialized",
	"Ext NFC configured",
	"Ext NFC initialized",
	"VSC_V",
	"VMC_V",
}

// IsKnownCheck reports whether name is part of the jig vocabulary.
func IsKnownCheck(name string) bool {
	for _, c := range KnownChecks {
		if c == name {
			return true
		}
	}
	return false
}

// Check is one named pass/fail sub-test of a board
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// Board is one physical unit under test
type Board struct {
	// 1-based channel number
	Index int `json:"index"`
	// Current lifecycle status
	Status BoardStatus `json:"status"`
	// Sub-check results in canonical order
	Checks []Check `json:"checks"`
}

// Summary aggregates board outcomes at the end of a run
type Summary struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	// Boards without a verdict (includes Unresolved)
	Untested int `json:"untested"`
	// Boards left in flashing without a verdict
	Unresolved int `json:"unresolved"`
	// Exit status of the external tool, if the run completed
	ExitCode *int `json:"exit_code,omitempty"`
}
