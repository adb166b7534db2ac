// Package catalogfile loads a merchant rule catalog from a local YAML or
// JSON file. It backs development setups and single-tenant deployments where
// the catalog does not live in PostgreSQL or behind the storefront API.
package catalogfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// Loader implements rule.CatalogSource over a file on disk. The parsed
// catalog is cached and re-read only when the file's mtime changes, so a
// pass never pays the parse cost twice for an unchanged file.
type Loader struct {
	path string

	mu      sync.Mutex
	cached  *rule.RawCatalog
	modTime time.Time
}

// NewLoader creates a loader for the given catalog file path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Fetch implements rule.CatalogSource.
func (l *Loader) Fetch(_ context.Context, _ shared.SessionToken) (*rule.RawCatalog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: stat catalog file %s: %v", shared.ErrCatalogUnavailable, l.path, err)
	}
	if l.cached != nil && info.ModTime().Equal(l.modTime) {
		return l.cached, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog file %s: %v", shared.ErrCatalogUnavailable, l.path, err)
	}

	raw, err := Parse(data, filepath.Ext(l.path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCatalogUnavailable, err)
	}

	l.cached = raw
	l.modTime = info.ModTime()
	return raw, nil
}

// Parse decodes catalog bytes. The extension picks the decoder; anything
// other than .json is treated as YAML, which also accepts JSON input.
func Parse(data []byte, ext string) (*rule.RawCatalog, error) {
	raw := &rule.RawCatalog{}
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, raw); err != nil {
			return nil, fmt.Errorf("parse catalog json: %w", err)
		}
		return raw, nil
	}
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	return raw, nil
}
