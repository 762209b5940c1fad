// Package fileyaml is a concrete SettingsStore adapter that persists
// the whole key-value document as a single YAML file. It exists so
// cmd/reflowd can run end-to-end without external settings infra; the
// core only ever sees the kvstore.Store port.
package fileyaml

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/reflowd/internal/kvstore"
)

// document is the on-disk shape. Maps are split by type because YAML
// scalars are untyped and the core needs typed round-trips.
type document struct {
	Float64 map[string]float64     `yaml:"float64,omitempty"`
	Int     map[string]int         `yaml:"int,omitempty"`
	String  map[string]string      `yaml:"string,omitempty"`
	Bool    map[string]bool        `yaml:"bool,omitempty"`
	Array8  map[string][8]float64  `yaml:"array8,omitempty"`
	IntList map[string][]int       `yaml:"int_list,omitempty"`
	Bytes   map[string][]byte      `yaml:"bytes,omitempty"`
}

// Store is a file-backed kvstore.Store. Every Set call rewrites the
// whole file (commit-on-set, per spec.md §6); callers needing high
// write throughput should batch at a higher layer.
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Open loads path if it exists, or starts with an empty document.
func Open(path string) (*Store, error) {
	s := &Store{path: path, doc: newDocument()}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := yaml.Unmarshal(data, &s.doc); err != nil {
		return nil, err
	}
	s.ensureMaps()
	return s, nil
}

func newDocument() document {
	return document{
		Float64: map[string]float64{},
		Int:     map[string]int{},
		String:  map[string]string{},
		Bool:    map[string]bool{},
		Array8:  map[string][8]float64{},
		IntList: map[string][]int{},
		Bytes:   map[string][]byte{},
	}
}

func (s *Store) ensureMaps() {
	if s.doc.Float64 == nil {
		s.doc.Float64 = map[string]float64{}
	}
	if s.doc.Int == nil {
		s.doc.Int = map[string]int{}
	}
	if s.doc.String == nil {
		s.doc.String = map[string]string{}
	}
	if s.doc.Bool == nil {
		s.doc.Bool = map[string]bool{}
	}
	if s.doc.Array8 == nil {
		s.doc.Array8 = map[string][8]float64{}
	}
	if s.doc.IntList == nil {
		s.doc.IntList = map[string][]int{}
	}
	if s.doc.Bytes == nil {
		s.doc.Bytes = map[string][]byte{}
	}
}

// commitLocked serializes and writes the document; caller holds mu.
func (s *Store) commitLocked() error {
	data, err := yaml.Marshal(s.doc)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *Store) GetFloat64(key string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.Float64[key]
	if !ok {
		return 0, kvstore.ErrNotFound
	}
	return v, nil
}

func (s *Store) SetFloat64(key string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Float64[key] = v
	return s.commitLocked()
}

func (s *Store) GetInt(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.Int[key]
	if !ok {
		return 0, kvstore.ErrNotFound
	}
	return v, nil
}

func (s *Store) SetInt(key string, v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Int[key] = v
	return s.commitLocked()
}

func (s *Store) GetString(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.String[key]
	if !ok {
		return "", kvstore.ErrNotFound
	}
	return v, nil
}

func (s *Store) SetString(key string, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.String[key] = v
	return s.commitLocked()
}

func (s *Store) GetBool(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.Bool[key]
	if !ok {
		return false, kvstore.ErrNotFound
	}
	return v, nil
}

func (s *Store) SetBool(key string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Bool[key] = v
	return s.commitLocked()
}

func (s *Store) GetFloat64Array8(key string) ([8]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.Array8[key]
	if !ok {
		return [8]float64{}, kvstore.ErrNotFound
	}
	return v, nil
}

func (s *Store) SetFloat64Array8(key string, v [8]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Array8[key] = v
	return s.commitLocked()
}

func (s *Store) GetIntSlice(key string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.IntList[key]
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	out := make([]int, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) SetIntSlice(key string, v []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int, len(v))
	copy(cp, v)
	s.doc.IntList[key] = cp
	return s.commitLocked()
}

func (s *Store) GetBytes(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.Bytes[key]
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) SetBytes(key string, v []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(v))
	copy(cp, v)
	s.doc.Bytes[key] = cp
	return s.commitLocked()
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Float64, key)
	delete(s.doc.Int, key)
	delete(s.doc.String, key)
	delete(s.doc.Bool, key)
	delete(s.doc.Array8, key)
	delete(s.doc.IntList, key)
	delete(s.doc.Bytes, key)
	return s.commitLocked()
}

var _ kvstore.Store = (*Store)(nil)
