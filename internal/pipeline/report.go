package pipeline

import (
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// WriteReport saves the batch tally as indented JSON.
func WriteReport(path string, tally Tally) error {
	data, err := sonic.ConfigStd.MarshalIndent(tally, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
