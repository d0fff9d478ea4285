// Package schema holds the JSON schemas request bodies and model replies are
// checked against.
package schema

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/qri-io/jsonschema"
)

const (
	JobDrop = "job_drop"
	Action  = "action"
	Summary = "summary"
)

//go:embed schemas/*.json
var embedded embed.FS

var ErrUnknownSchema = errors.New("schema: unknown schema")

// ValidationError lists every keyword the document failed.
type ValidationError struct {
	Schema   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Schema, strings.Join(e.Problems, "; "))
}

// Registry caches compiled schemas by name.
type Registry struct {
	fsys  fs.FS
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Registry, error) {
	return Load(embedded)
}

// Load compiles every schemas/*.json file of fsys; the file stem is the schema name.
func Load(fsys fs.FS) (*Registry, error) {
	r := &Registry{fsys: fsys}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload recompiles all schemas and swaps the cache only when every one compiles.
func (r *Registry) Reload() error {
	files, err := fs.Glob(r.fsys, "schemas/*.json")
	if err != nil {
		return fmt.Errorf("list schemas: %w", err)
	}

	next := make(map[string]*jsonschema.Schema, len(files))
	for _, f := range files {
		b, err := fs.ReadFile(r.fsys, f)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", f, err)
		}
		rs := &jsonschema.Schema{}
		if err := json.Unmarshal(b, rs); err != nil {
			return fmt.Errorf("compile schema %s: %w", f, err)
		}
		next[strings.TrimSuffix(path.Base(f), ".json")] = rs
	}

	r.mu.Lock()
	r.cache = next
	r.mu.Unlock()
	return nil
}

func (r *Registry) Get(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	s, ok := r.cache[name]
	r.mu.RUnlock()
	return s, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.cache))
	for n := range r.cache {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Validate checks data against the named schema. A document that parses but
// breaks the schema yields a *ValidationError.
func (r *Registry) Validate(ctx context.Context, name string, data []byte) error {
	s, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	verrs, err := s.ValidateBytes(ctx, data)
	if err != nil {
		return fmt.Errorf("validate %s: %w", name, err)
	}
	if len(verrs) == 0 {
		return nil
	}
	ve := &ValidationError{Schema: name}
	for _, v := range verrs {
		msg := v.Message
		if v.PropertyPath != "" {
			msg = v.PropertyPath + " " + msg
		}
		ve.Problems = append(ve.Problems, msg)
	}
	return ve
}
