package server

import (
	"encoding/json"
	"os"

	"github.com/gastown/gt/internal/obs/model"
	"github.com/gastown/gt/internal/util"
)

// loadAlerts reads the persisted alert ring from path, returning an empty
// slice if the file does not yet exist.
func loadAlerts(path string) ([]model.Alert, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var alerts []model.Alert
	if err := json.Unmarshal(data, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// saveAlerts atomically persists the alert ring, matching rules.FileStore's
// write-to-temp-then-rename convention.
func saveAlerts(path string, alerts []model.Alert) error {
	return util.AtomicWriteJSON(path, alerts)
}
