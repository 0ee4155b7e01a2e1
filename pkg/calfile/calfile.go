// Package calfile reads and writes calibration records as YAML files.
package calfile

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"wedgecal/internal/models"
	"wedgecal/pkg/calibration"
)

// Extension is the file extension used for calibration files
const Extension = ".cal.yaml"

// Save writes rec to path, creating the directory if needed
func Save(rec calibration.Record, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating calibration directory: %w", err)
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("error marshaling calibration: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing calibration file: %w", err)
	}

	return nil
}

// Load reads a record from path
func Load(path string) (calibration.Record, error) {
	var rec calibration.Record

	data, err := os.ReadFile(path)
	if err != nil {
		return rec, fmt.Errorf("error reading calibration file: %w", err)
	}

	if err := yaml.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("error parsing calibration file: %w", err)
	}

	return rec, nil
}

// SaveTable exports table and writes it to path
func SaveTable(table *calibration.Table, path string) error {
	return Save(table.Export(), path)
}

// LoadTable reads path into a new table
func LoadTable(path string) (*calibration.Table, error) {
	rec, err := Load(path)
	if err != nil {
		return nil, err
	}

	table := calibration.NewTable(rec.MaxGrayValue)
	if err := table.Import(rec); err != nil {
		return nil, fmt.Errorf("invalid calibration file %s: %w", path, err)
	}
	return table, nil
}

// PathFor returns the default calibration file name for an image side,
// e.g. dir/left.cal.yaml
func PathFor(dir string, side models.Side) string {
	return filepath.Join(dir, side.String()+Extension)
}
