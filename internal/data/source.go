// Package data loads row fixtures (device ids, sensor names, credentials)
// that hook scripts draw from when rendering topics and payloads.
package data

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"mqttbench/internal/core"
)

// Mode defines how rows are selected.
type Mode string

const (
	// ModeSequential hands out rows in order, wrapping around.
	ModeSequential Mode = "sequential"
	// ModeRandom picks a random row every time.
	ModeRandom Mode = "random"
)

// Spec declares one named source in a hook script.
type Spec struct {
	File string `yaml:"file"`
	Mode Mode   `yaml:"mode"`
}

// Source is a loaded fixture shared by every connection of a worker unit.
type Source struct {
	name    string
	rows    []map[string]any
	mode    Mode
	counter atomic.Uint64
	mu      sync.Mutex
	rng     *rand.Rand
}

func NewSource(name string, rows []map[string]any, mode Mode) *Source {
	if mode == "" {
		mode = ModeSequential
	}
	return &Source{
		name: name,
		rows: rows,
		mode: mode,
		rng:  rand.New(rand.NewSource(rand.Int63())),
	}
}

func (s *Source) Name() string { return s.name }
func (s *Source) Len() int     { return len(s.rows) }

// Next returns a copy of the next row. Safe for concurrent use.
func (s *Source) Next() map[string]any {
	if len(s.rows) == 0 {
		return nil
	}

	var idx int
	if s.mode == ModeRandom {
		s.mu.Lock()
		idx = s.rng.Intn(len(s.rows))
		s.mu.Unlock()
	} else {
		n := s.counter.Add(1) - 1
		idx = int(n % uint64(len(s.rows)))
	}

	row := make(map[string]any, len(s.rows[idx]))
	for k, v := range s.rows[idx] {
		row[k] = v
	}
	return row
}

// LoadFile loads a CSV, JSON or YAML fixture. Relative paths resolve against baseDir.
func LoadFile(name, path string, mode Mode, baseDir string) (*Source, error) {
	switch mode {
	case "", ModeSequential, ModeRandom:
	default:
		return nil, fmt.Errorf("source %q: unknown mode %q", name, mode)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	var rows []map[string]any
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = loadCSV(path)
	case ".json":
		rows, err = loadJSON(path)
	case ".yaml", ".yml":
		rows, err = loadYAML(path)
	default:
		return nil, fmt.Errorf("source %q: unsupported file format %q (use .csv, .json or .yaml)", name, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("data file %s is empty", path)
	}
	return NewSource(name, rows, mode), nil
}

// loadCSV reads a header row followed by data rows. Values stay strings.
func loadCSV(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, errors.New("CSV must have header row and at least one data row")
	}

	headers := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func loadJSON(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("JSON must be an array of objects: %w", err)
	}
	return rows, nil
}

func loadYAML(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := yaml.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("YAML must be a sequence of mappings: %w", err)
	}
	return rows, nil
}

// Sources is a set of named sources.
type Sources map[string]*Source

// LoadAll loads every declared source.
func LoadAll(specs map[string]Spec, baseDir string) (Sources, error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	sources := make(Sources, len(specs))
	for _, name := range names {
		spec := specs[name]
		if spec.File == "" {
			return nil, fmt.Errorf("source %q: file is required", name)
		}
		src, err := LoadFile(name, spec.File, spec.Mode, baseDir)
		if err != nil {
			return nil, err
		}
		sources[name] = src
	}
	return sources, nil
}

// Bind draws one row from every source and exposes its fields as
// data.<source>.<field>.
func (s Sources) Bind(vars core.Variables) {
	for name, source := range s {
		for field, value := range source.Next() {
			vars.Set("data."+name+"."+field, value)
		}
	}
}
