package assistant

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/qri-io/jsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// InsightsSchema is the schema version admin insights are checked against.
const InsightsSchema = "insights.v1"

// Loader compiles and caches the JSON schemas model output is checked against.
// A file named insights_v1.json is registered as version "insights.v1".
type Loader struct {
	fsys  fs.FS
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewLoader loads every *.json file at the root of fsys. A nil fsys uses the
// embedded schemas.
func NewLoader(fsys fs.FS) (*Loader, error) {
	if fsys == nil {
		sub, err := fs.Sub(schemaFS, "schemas")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}
	l := &Loader{fsys: fsys, cache: make(map[string]*jsonschema.Schema)}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// GetSchema returns a compiled schema for a version.
func (l *Loader) GetSchema(version string) (*jsonschema.Schema, bool) {
	l.mu.RLock()
	s, ok := l.cache[version]
	l.mu.RUnlock()
	return s, ok
}

// Versions lists the loaded schema versions.
func (l *Loader) Versions() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.cache))
	for v := range l.cache {
		out = append(out, v)
	}
	return out
}

// Reload recompiles every schema. The cache is swapped only when all compile.
func (l *Loader) Reload() error {
	files, err := fs.Glob(l.fsys, "*.json")
	if err != nil {
		return fmt.Errorf("list schemas: %w", err)
	}

	next := make(map[string]*jsonschema.Schema, len(files))
	for _, name := range files {
		b, err := fs.ReadFile(l.fsys, name)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", name, err)
		}
		rs := &jsonschema.Schema{}
		if err := json.Unmarshal(b, rs); err != nil {
			return fmt.Errorf("compile schema %s: %w", name, err)
		}
		next[schemaVersion(name)] = rs
	}

	l.mu.Lock()
	l.cache = next
	l.mu.Unlock()
	return nil
}

// Validate checks doc against the schema registered as version.
func (l *Loader) Validate(ctx context.Context, version string, doc []byte) error {
	s, ok := l.GetSchema(version)
	if !ok || s == nil {
		return fmt.Errorf("no schema found for version %s", version)
	}
	verrs, err := s.ValidateBytes(ctx, doc)
	if err != nil {
		return fmt.Errorf("schema validate: %w", err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, v := range verrs {
			msgs = append(msgs, strings.TrimSpace(v.PropertyPath+" "+v.Message))
		}
		return fmt.Errorf("does not match %s: %s", version, strings.Join(msgs, "; "))
	}
	return nil
}

func schemaVersion(file string) string {
	stem := strings.TrimSuffix(path.Base(file), path.Ext(file))
	if i := strings.LastIndex(stem, "_"); i >= 0 {
		return stem[:i] + "." + stem[i+1:]
	}
	return stem
}
