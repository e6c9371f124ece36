package rules

import (
	"encoding/json"
	"os"

	"github.com/gastown/gt/internal/obs/model"
	"github.com/gastown/gt/internal/util"
)

// FileStore persists the rule set as a single JSON document, written
// atomically via internal/util.AtomicWriteJSON (temp file + rename).
type FileStore struct {
	Path string
}

// Load reads the rule set from disk, returning an empty slice if the file
// does not yet exist.
func (s *FileStore) Load() ([]model.Rule, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rules []model.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Save atomically overwrites the persisted rule set.
func (s *FileStore) Save(rules []model.Rule) error {
	return util.AtomicWriteJSON(s.Path, rules)
}
