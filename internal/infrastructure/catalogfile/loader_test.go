package catalogfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

const yamlCatalog = `
shipping:
  - id: shipping:free
    step: step1
    goal: "50"
    after_message: Free shipping unlocked!
free_gift:
  - id: freegift:mug
    step: step2
    gift_min: "75"
    variant_id: "9001"
fallback_messages:
  - Free returns on all orders
`

const jsonCatalog = `{
  "shipping": [
    {"id": "shipping:free", "step": "step1", "goal": "50"}
  ],
  "fallback_messages": ["Free returns on all orders"]
}`

func writeCatalog(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}
	return path
}

func TestParse_YAML(t *testing.T) {
	raw, err := Parse([]byte(yamlCatalog), ".yaml")
	assert.NoError(t, err)
	assert.Len(t, raw.Shipping, 1)
	assert.Len(t, raw.FreeGift, 1)
	assert.Equal(t, "shipping:free", raw.Shipping[0]["id"])
	assert.Equal(t, []string{"Free returns on all orders"}, raw.Fallback)
}

func TestParse_JSON(t *testing.T) {
	raw, err := Parse([]byte(jsonCatalog), ".json")
	assert.NoError(t, err)
	assert.Len(t, raw.Shipping, 1)
	assert.Equal(t, "step1", raw.Shipping[0]["step"])
}

func TestParse_JSONThroughYAMLDecoder(t *testing.T) {
	// YAML is a JSON superset, so a mislabeled extension still parses.
	raw, err := Parse([]byte(jsonCatalog), ".yml")
	assert.NoError(t, err)
	assert.Len(t, raw.Shipping, 1)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte(`{"shipping": [`), ".json")
	assert.Error(t, err)

	_, err = Parse([]byte("\t- not yaml"), ".yaml")
	assert.Error(t, err)
}

func TestLoader_FetchAndCache(t *testing.T) {
	path := writeCatalog(t, "catalog.yaml", yamlCatalog)
	l := NewLoader(path)

	first, err := l.Fetch(context.Background(), "sess-1")
	if !assert.NoError(t, err) {
		return
	}
	assert.Len(t, first.Shipping, 1)

	// Unchanged file returns the cached parse.
	second, err := l.Fetch(context.Background(), "sess-1")
	assert.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLoader_RereadsOnModification(t *testing.T) {
	path := writeCatalog(t, "catalog.yaml", yamlCatalog)
	l := NewLoader(path)

	_, err := l.Fetch(context.Background(), "sess-1")
	assert.NoError(t, err)

	if err := os.WriteFile(path, []byte("shipping: []\n"), 0o644); err != nil {
		t.Fatalf("rewrite catalog file: %v", err)
	}
	// Some filesystems truncate mtime to the second.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("bump catalog mtime: %v", err)
	}

	raw, err := l.Fetch(context.Background(), "sess-1")
	if !assert.NoError(t, err) {
		return
	}
	assert.Empty(t, raw.Shipping)
}

func TestLoader_MissingFile(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := l.Fetch(context.Background(), "sess-1")
	assert.ErrorIs(t, err, shared.ErrCatalogUnavailable)
}

func TestLoader_MalformedFile(t *testing.T) {
	path := writeCatalog(t, "catalog.json", `{"broken":`)
	l := NewLoader(path)

	_, err := l.Fetch(context.Background(), "sess-1")
	assert.ErrorIs(t, err, shared.ErrCatalogUnavailable)
}
