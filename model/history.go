package model

import "time"

// RunRecord represents a single supervised execution of the jig script
type RunRecord struct {
	// Unique ID for this run (16 random bytes, hex encoded)
	ID string `json:"id"`
	// Timestamp when the run started
	Timestamp time.Time `json:"timestamp"`
	// Command line of the external tool (including interpreter)
	Args []string `json:"args"`
	// Host the tool ran on, empty for local runs
	RemoteHost string `json:"remote_host,omitempty"`
	// Exit code of the external tool (-1 if killed or never started)
	ExitCode int `json:"exit_code"`
	// Duration of the run
	Duration time.Duration `json:"duration"`
	// Whether the run was cancelled by the operator or a client disconnect
	Cancelled bool `json:"cancelled,omitempty"`
	// Message of the error that ended the run, if any
	Fatal string `json:"fatal,omitempty"`
	// Final board states
	Boards []Board `json:"boards"`
	// Aggregate verdicts
	Summary Summary `json:"summary"`
	// Required-check selection the verdicts were computed with
	RequiredChecks map[string]bool `json:"required_checks,omitempty"`
	// Artifacts generated during this run
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypeStdout ArtifactType = iota
	ArtifactTypeStderr
)

// Artifact represents a file generated during a run
type Artifact struct {
	Type ArtifactType `json:"type"`
	Size uint64       `json:"size"`
	File string       `json:"file"` // relative to run dir
}
