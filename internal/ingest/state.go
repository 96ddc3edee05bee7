package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// State tracks which layout files have been ingested and which units
// failed to embed, so re-runs skip unchanged documents but retry ones
// that landed incomplete.
type State struct {
	DocHashes   map[string]string   `json:"doc_hashes"`
	FailedUnits map[string][]string `json:"failed_units,omitempty"`
	LastUpdated time.Time           `json:"last_updated"`
}

// StatePath returns the location of the state file in a data directory.
func StatePath(dataDir string) string {
	return filepath.Join(dataDir, "ingest_state.json")
}

// LoadState reads ingestion state from the data directory. A missing
// file yields empty state.
func LoadState(dataDir string) (*State, error) {
	data, err := os.ReadFile(StatePath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return &State{DocHashes: make(map[string]string)}, nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.DocHashes == nil {
		state.DocHashes = make(map[string]string)
	}
	return &state, nil
}

// Save writes the state to the data directory.
func (s *State) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	s.LastUpdated = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(StatePath(dataDir), data, 0o644)
}

// NeedsIngest reports whether a document must be (re)processed: its
// content changed, it was never seen, or its last run left failed units.
func (s *State) NeedsIngest(filePath, contentHash string) bool {
	stored, ok := s.DocHashes[filePath]
	if !ok || stored != contentHash {
		return true
	}
	return len(s.FailedUnits[filePath]) > 0
}

// RecordSuccess marks a document fully ingested.
func (s *State) RecordSuccess(filePath, contentHash string) {
	s.DocHashes[filePath] = contentHash
	delete(s.FailedUnits, filePath)
}

// RecordPartial marks a document ingested with some units left out.
func (s *State) RecordPartial(filePath, contentHash string, failedUnitIDs []string) {
	s.DocHashes[filePath] = contentHash
	if s.FailedUnits == nil {
		s.FailedUnits = make(map[string][]string)
	}
	s.FailedUnits[filePath] = failedUnitIDs
}
