package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/dropDatabas3/portal/internal/util/atomicwrite"
)

// File guarda todas las keys en un único documento JSON, escrito atómicamente
// con permisos 0600.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile crea un store respaldado por el archivo path (se crea al primer Set).
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) load() (map[string]string, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv: read %s: %w", f.path, err)
	}
	m := map[string]string{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("kv: parse %s: %w", f.path, err)
	}
	return m, nil
}

func (f *File) save(m map[string]string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return atomicwrite.WriteFile(f.path, b, 0o600)
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load()
	if err != nil {
		// archivo corrupto: se reescribe desde cero
		m = map[string]string{}
	}
	m[key] = value
	return f.save(m)
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load()
	if err != nil {
		return f.save(map[string]string{})
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return f.save(m)
}

func (f *File) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.load()
	return err
}

func (f *File) Close() error   { return nil }
func (f *File) Driver() string { return "file" }

// Path devuelve la ruta del documento.
func (f *File) Path() string { return f.path }
