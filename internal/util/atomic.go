package util

import (
	"encoding/json"
	"fmt"
	"os"
)

// AtomicWriteFile writes data to path by first writing to a ".tmp" sibling
// file and renaming it into place, so concurrent readers never observe a
// partial write.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// AtomicWriteJSON marshals v as indented JSON and writes it atomically to
// path via AtomicWriteFile.
func AtomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}
	return AtomicWriteFile(path, data, 0644)
}
