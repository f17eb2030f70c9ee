package calib

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Table kinds.
const (
	KindGain     = "gain"
	KindPhase    = "phase"
	KindGainCode = "gaincode"
)

// Table maps element numbers (1-based) to calibration values. It is written
// once per run; the last writer wins.
type Table struct {
	RunID   uuid.UUID       `json:"run_id" cbor:"run_id"`
	Kind    string          `json:"kind" cbor:"kind"`
	Created time.Time       `json:"created" cbor:"created"`
	Entries map[int]float64 `json:"entries" cbor:"entries"`
}

// NewTable starts an empty table for a new calibration run.
func NewTable(kind string) *Table {
	return &Table{
		RunID:   uuid.New(),
		Kind:    kind,
		Created: time.Now().UTC(),
		Entries: map[int]float64{},
	}
}

// TableFromSlice numbers values from element 1.
func TableFromSlice(kind string, values []float64) *Table {
	t := NewTable(kind)
	for i, v := range values {
		t.Entries[i+1] = v
	}
	return t
}

// Set records the value of element el.
func (t *Table) Set(el int, v float64) { t.Entries[el] = v }

// Get returns the value of element el.
func (t *Table) Get(el int) (float64, bool) {
	v, ok := t.Entries[el]
	return v, ok
}

// Elements returns the element numbers present, ascending.
func (t *Table) Elements() []int {
	els := make([]int, 0, len(t.Entries))
	for el := range t.Entries {
		els = append(els, el)
	}
	sort.Ints(els)
	return els
}

// Slice returns elements 1..n with def for missing entries.
func (t *Table) Slice(n int, def float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if v, ok := t.Entries[i+1]; ok {
			out[i] = v
		} else {
			out[i] = def
		}
	}
	return out
}

type codec struct {
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

func codecFor(path string) (codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return codec{
			marshal:   func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
			unmarshal: json.Unmarshal,
		}, nil
	case ".cbor":
		return codec{marshal: cborMarshal, unmarshal: cbor.Unmarshal}, nil
	default:
		return codec{}, fmt.Errorf("calib: unsupported table format %q", filepath.Ext(path))
	}
}

func cborMarshal(v any) ([]byte, error) {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(v)
}

// Save writes the table as JSON or CBOR depending on the file extension. The
// file is replaced atomically.
func (t *Table) Save(path string) error {
	c, err := codecFor(path)
	if err != nil {
		return err
	}
	data, err := c.marshal(t)
	if err != nil {
		return fmt.Errorf("encode table: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("save table: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save table: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save table: %w", err)
	}
	return nil
}

// Load reads a table written by Save.
func Load(path string) (*Table, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Table
	if err := c.unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode table %s: %w", path, err)
	}
	if t.Entries == nil {
		t.Entries = map[int]float64{}
	}
	return &t, nil
}

// LoadOrDefault loads path, or returns a table of n copies of def when the
// file does not exist.
func LoadOrDefault(path, kind string, n int, def float64) (*Table, error) {
	t, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		values := make([]float64, n)
		for i := range values {
			values[i] = def
		}
		return TableFromSlice(kind, values), nil
	}
	if err != nil {
		return nil, err
	}
	if t.Kind != "" && kind != "" && t.Kind != kind {
		return nil, fmt.Errorf("calib: %s holds a %q table, want %q", path, t.Kind, kind)
	}
	return t, nil
}
