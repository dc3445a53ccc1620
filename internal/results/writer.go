package results

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
)

// ToJSON serializes the report.
func (r *Report) ToJSON(pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(r, "", "  ")
	}
	return json.Marshal(r)
}

// WriteFile writes r to path. The file is written next to its destination
// and renamed into place so readers never see a partial report.
func WriteFile(path string, r *Report, pretty bool) error {
	data, err := r.ToJSON(pretty)
	if err != nil {
		return fmt.Errorf("results: marshal report: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("results: create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("results: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("results: write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("results: close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("results: move report into place: %w", err)
	}
	return nil
}
