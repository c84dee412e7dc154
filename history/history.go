package history

// This file contains shared history utilities for loading and parsing
// recorded flash runs.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/flashjig/flashjig/model"
)

const recordFile = "run.json"

type Entry struct {
	Run      model.RunRecord
	FullPath string
}

// LoadEntries loads all run records below root, newest first. A missing root
// yields no entries.
func LoadEntries(logger zerolog.Logger, root string) ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}

		if d.IsDir() {
			recordPath := filepath.Join(path, recordFile)
			if _, err := os.Stat(recordPath); err == nil {
				run, err := parseRunJSON(recordPath)
				if err != nil {
					logger.Warn().Err(err).Str("path", recordPath).Msg("Failed to parse run.json")
					return nil
				}

				entries = append(entries, Entry{
					Run:      run,
					FullPath: path,
				})
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk history directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Run.Timestamp.After(entries[j].Run.Timestamp)
	})

	return entries, nil
}

// Find returns the entry whose ID starts with prefix. The prefix must be
// unambiguous.
func Find(entries []Entry, prefix string) (*Entry, error) {
	var found *Entry
	for i := range entries {
		if strings.HasPrefix(entries[i].Run.ID, prefix) {
			if found != nil {
				return nil, fmt.Errorf("run ID prefix %q is ambiguous", prefix)
			}
			found = &entries[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("no run found with ID prefix %q", prefix)
	}
	return found, nil
}

// parseRunJSON parses a run.json file.
func parseRunJSON(recordPath string) (model.RunRecord, error) {
	data, err := os.ReadFile(recordPath)
	if err != nil {
		return model.RunRecord{}, err
	}

	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}

	return run, nil
}
