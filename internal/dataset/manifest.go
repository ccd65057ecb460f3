// Package dataset groups the saved triples into (t1, t2) sample folders and splits them into
// train and test sets.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/source"
	"github.com/Devyash0601/WGAST-test/internal/temporal"
)

var ErrIntegrity = errors.New("dataset integrity error")

// IntegrityError lists the files required by a pair (or a whole manifest) that do not exist.
type IntegrityError struct {
	Pair    string
	Missing []string
}

func (e *IntegrityError) Error() string {
	where := "manifest"
	if e.Pair != "" {
		where = e.Pair
	}
	return fmt.Sprintf("%s: %s: %d missing files: %s", ErrIntegrity, where, len(e.Missing), strings.Join(e.Missing, ", "))
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// Naming gives the file names of a triple member and its mask inside the triple directory.
type Naming interface {
	RasterName(sensor source.Sensor, date time.Time) string
	MaskName(sensor source.Sensor, date time.Time) string
}

// PrefixNaming is the layout written by the triple stage: M_20200101.tif and
// M_mask_20200101.tif.
type PrefixNaming struct {
	Ext string
}

func (n PrefixNaming) ext() string {
	if n.Ext == "" {
		return ".tif"
	}
	return n.Ext
}

func (n PrefixNaming) RasterName(sensor source.Sensor, date time.Time) string {
	return fmt.Sprintf("%s_%s%s", sensor.Prefix(), temporal.FormatCompact(date), n.ext())
}

func (n PrefixNaming) MaskName(sensor source.Sensor, date time.Time) string {
	return fmt.Sprintf("%s_mask_%s%s", sensor.Prefix(), temporal.FormatCompact(date), n.ext())
}

// Entry holds the paths of one (date, sensor) member.
type Entry struct {
	Date   time.Time
	Sensor source.Sensor
	Raster string
	Mask   string
}

type entryKey struct {
	date   time.Time
	sensor source.Sensor
}

// Manifest maps (date, sensor) to the files on disk. Only members whose raster and mask both
// exist are present.
type Manifest struct {
	Dir     string
	entries map[entryKey]Entry
	missing []string
}

// BuildManifest resolves every (date, sensor) combination under dir and checks the files exist.
// When some are missing the manifest is still returned, together with an *IntegrityError listing
// them, so callers can decide whether to abort or skip the affected pairs.
func BuildManifest(dir string, dates []time.Time, sensors []source.Sensor, naming Naming) (*Manifest, error) {
	if naming == nil {
		naming = PrefixNaming{}
	}
	m := &Manifest{Dir: dir, entries: make(map[entryKey]Entry)}

	for _, d := range dates {
		d = temporal.Day(d)
		for _, sensor := range sensors {
			k := entryKey{date: d, sensor: sensor}
			if _, done := m.entries[k]; done {
				continue
			}
			e := Entry{
				Date:   d,
				Sensor: sensor,
				Raster: filepath.Join(dir, naming.RasterName(sensor, d)),
				Mask:   filepath.Join(dir, naming.MaskName(sensor, d)),
			}
			complete := true
			for _, path := range []string{e.Raster, e.Mask} {
				if !exists(path) {
					m.missing = append(m.missing, path)
					complete = false
				}
			}
			if complete {
				m.entries[k] = e
			}
		}
	}

	if len(m.missing) > 0 {
		sort.Strings(m.missing)
		m.missing = dedupe(m.missing)
		return m, &IntegrityError{Missing: m.missing}
	}
	return m, nil
}

// Lookup returns the member of sensor on date.
func (m *Manifest) Lookup(sensor source.Sensor, date time.Time) (Entry, bool) {
	e, ok := m.entries[entryKey{date: temporal.Day(date), sensor: sensor}]
	return e, ok
}

// Missing lists the files that were not found, sorted.
func (m *Manifest) Missing() []string {
	return m.missing
}

// Len is the number of complete members.
func (m *Manifest) Len() int {
	return len(m.entries)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
