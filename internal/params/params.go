// Package params holds the named scalar inputs that parameterize a simulation run.
package params

import (
	"math"
	"os"
	"os/user"
	"sort"
	"time"

	"github.com/felixgeelhaar/watts/internal/errors"
)

// now is swapped in tests to make modification times deterministic.
var now = time.Now

// Metadata describes a single parameter.
type Metadata struct {
	Unit        string    `json:"unit,omitempty" yaml:"unit,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Label       string    `json:"label,omitempty" yaml:"label,omitempty"`
	User        string    `json:"user,omitempty" yaml:"user,omitempty"`
	Modified    time.Time `json:"modified,omitempty" yaml:"modified,omitempty"`
}

// Option sets metadata on a parameter when it is written.
type Option func(*Metadata)

// WithUnit records the physical unit of a parameter.
func WithUnit(unit string) Option {
	return func(m *Metadata) { m.Unit = unit }
}

// WithDescription records a human readable description.
func WithDescription(desc string) Option {
	return func(m *Metadata) { m.Description = desc }
}

// WithLabel tags a parameter, e.g. with the workflow step that set it.
func WithLabel(label string) Option {
	return func(m *Metadata) { m.Label = label }
}

type entry struct {
	value any
	meta  Metadata
}

// Parameters is an insertion-ordered mapping from unique keys to scalar
// values (int64, float64, string or bool). The zero value is not usable;
// create one with New or FromMap.
type Parameters struct {
	keys    []string
	entries map[string]*entry
}

// New creates an empty parameter set.
func New() *Parameters {
	return &Parameters{entries: make(map[string]*entry)}
}

// FromMap creates a parameter set from m. Keys are inserted in sorted order.
func FromMap(m map[string]any) (*Parameters, error) {
	p := New()
	if err := p.Update(m); err != nil {
		return nil, err
	}
	return p, nil
}

// Set stores value under key. Setting an existing key keeps its position and
// its unit/description unless options override them.
func (p *Parameters) Set(key string, value any, opts ...Option) error {
	v, ok := normalize(value)
	if !ok {
		return errors.NewParamInvalidError(key, value)
	}

	e, exists := p.entries[key]
	if !exists {
		e = &entry{}
		p.entries[key] = e
		p.keys = append(p.keys, key)
	}
	e.value = v
	e.meta.User = currentUser()
	e.meta.Modified = now()
	for _, opt := range opts {
		opt(&e.meta)
	}
	return nil
}

// Get returns the value stored under key.
func (p *Parameters) Get(key string) (any, error) {
	e, ok := p.entries[key]
	if !ok {
		return nil, errors.NewParamNotFoundError(key)
	}
	return e.value, nil
}

// Float returns a numeric parameter as float64. Integers are converted.
func (p *Parameters) Float(key string) (float64, error) {
	v, err := p.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	}
	return 0, errors.New(errors.ErrCodeParamInvalid, "parameter "+key+" is not numeric")
}

// Int returns an integer parameter.
func (p *Parameters) Int(key string) (int64, error) {
	v, err := p.Get(key)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, errors.New(errors.ErrCodeParamInvalid, "parameter "+key+" is not an integer")
	}
	return n, nil
}

// String returns a string parameter.
func (p *Parameters) String(key string) (string, error) {
	v, err := p.Get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.New(errors.ErrCodeParamInvalid, "parameter "+key+" is not a string")
	}
	return s, nil
}

// Bool returns a boolean parameter.
func (p *Parameters) Bool(key string) (bool, error) {
	v, err := p.Get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.New(errors.ErrCodeParamInvalid, "parameter "+key+" is not a boolean")
	}
	return b, nil
}

// Metadata returns the metadata of key.
func (p *Parameters) Metadata(key string) (Metadata, error) {
	e, ok := p.entries[key]
	if !ok {
		return Metadata{}, errors.NewParamNotFoundError(key)
	}
	return e.meta, nil
}

// Has reports whether key is set.
func (p *Parameters) Has(key string) bool {
	_, ok := p.entries[key]
	return ok
}

// Delete removes key. Deleting an absent key is a no-op.
func (p *Parameters) Delete(key string) {
	if _, ok := p.entries[key]; !ok {
		return
	}
	delete(p.entries, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (p *Parameters) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of parameters.
func (p *Parameters) Len() int {
	return len(p.keys)
}

// ToMap exports the values as a plain map.
func (p *Parameters) ToMap() map[string]any {
	m := make(map[string]any, len(p.keys))
	for k, e := range p.entries {
		m[k] = e.value
	}
	return m
}

// Update imports every entry of m. New keys are appended in sorted order so
// the result does not depend on map iteration order. Nothing is written if
// any value is rejected.
func (p *Parameters) Update(m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if _, ok := normalize(v); !ok {
			return errors.NewParamInvalidError(k, v)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := p.Set(k, m[k]); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p *Parameters) Clone() *Parameters {
	c := &Parameters{
		keys:    append([]string(nil), p.keys...),
		entries: make(map[string]*entry, len(p.entries)),
	}
	for k, e := range p.entries {
		cp := *e
		c.entries[k] = &cp
	}
	return c
}

// normalize maps the accepted Go scalar types onto int64, float64, string and
// bool. Unsigned values that do not fit in int64 are rejected.
func normalize(v any) (any, bool) {
	switch n := v.(type) {
	case int64, float64, string, bool:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return nil, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return nil, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float32:
		return float64(n), true
	}
	return nil, false
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
