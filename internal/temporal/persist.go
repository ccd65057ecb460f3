package temporal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SaveDates writes dates as a JSON array of YYYY-MM-DD strings, order preserved.
func SaveDates(path string, dates []time.Time) error {
	values := make([]string, len(dates))
	for i, d := range dates {
		values[i] = Format(d)
	}
	return writeJSON(path, values)
}

// LoadDates reads a JSON array of date strings written by SaveDates (any ParseDate layout).
func LoadDates(path string) ([]time.Time, error) {
	var values []string
	if err := readJSON(path, &values); err != nil {
		return nil, err
	}
	return NormalizeAll(values)
}

// SavePairs writes pairs as a JSON array of ["YYYYMMDD","YYYYMMDD"], order preserved.
func SavePairs(path string, pairs []Pair) error {
	values := make([][2]string, len(pairs))
	for i, p := range pairs {
		values[i] = p.Compact()
	}
	return writeJSON(path, values)
}

func LoadPairs(path string) ([]Pair, error) {
	var values [][2]string
	if err := readJSON(path, &values); err != nil {
		return nil, err
	}
	pairs := make([]Pair, 0, len(values))
	for _, v := range values {
		t1, err := ParseDate(v[0])
		if err != nil {
			return nil, err
		}
		t2, err := ParseDate(v[1])
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{T1: t1, T2: t2})
	}
	return pairs, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
