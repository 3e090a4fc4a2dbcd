package ontology

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOLS(t *testing.T, handler http.HandlerFunc) (*OLSClient, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return NewOLSClient(OLSConfig{
		BaseURL:   server.URL,
		Ontology:  "HP",
		RateLimit: 1000,
		Timeout:   5 * time.Second,
	}), &calls
}

func TestOLSClient_Label(t *testing.T) {
	client, _ := newTestOLS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/terms", r.URL.Path)
		if r.URL.Query().Get("obo_id") != "GO:0008150" {
			w.Write([]byte(`{"_embedded":{"terms":[]}}`))
			return
		}
		w.Write([]byte(`{"_embedded":{"terms":[{"obo_id":"GO:0008150","label":"biological_process"}]}}`))
	})

	label, err := client.Label(context.Background(), "GO:0008150")
	require.NoError(t, err)
	assert.Equal(t, "biological_process", label)

	_, err = client.Label(context.Background(), "GO:9999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOLSClient_Annotate(t *testing.T) {
	client, _ := newTestOLS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search", r.URL.Path)
		assert.Equal(t, "hp", r.URL.Query().Get("ontology"))
		assert.Equal(t, "true", r.URL.Query().Get("exact"))
		w.Write([]byte(`{"response":{"numFound":1,"docs":[{"obo_id":"HP:0001250","label":"Seizure"},{"label":"no id"}]}}`))
	})

	terms, err := client.Annotate(context.Background(), "seizures ")
	require.NoError(t, err)
	assert.Equal(t, []Term{{ID: "HP:0001250", Label: "Seizure"}}, terms)

	terms, err = client.Annotate(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, terms)
}

func TestOLSClient_RetriesServerErrors(t *testing.T) {
	var n atomic.Int64
	client, calls := newTestOLS(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"_embedded":{"terms":[{"obo_id":"HP:1","label":"one"}]}}`))
	})

	label, err := client.Label(context.Background(), "HP:1")
	require.NoError(t, err)
	assert.Equal(t, "one", label)
	assert.Equal(t, int64(2), calls.Load())
}

func TestOLSClient_DoesNotRetryNotFound(t *testing.T) {
	client, calls := newTestOLS(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.Label(context.Background(), "HP:404")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(1), calls.Load())
}

type countingLabeler struct {
	calls  int
	labels map[string]string
}

func (c *countingLabeler) Label(_ context.Context, id string) (string, error) {
	c.calls++
	if l, ok := c.labels[id]; ok {
		return l, nil
	}
	return "", ErrNotFound
}

func TestCachedLabeler(t *testing.T) {
	inner := &countingLabeler{labels: map[string]string{"HP:1": "one"}}
	cached, err := NewCachedLabeler(inner, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		label, err := cached.Label(context.Background(), "HP:1")
		require.NoError(t, err)
		assert.Equal(t, "one", label)
	}
	for i := 0; i < 2; i++ {
		_, err := cached.Label(context.Background(), "HP:2")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 2, cached.Len())
}

func TestDictionary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.yaml")
	doc := `
- id: HGNC:1100
  label: BRCA1
  synonyms: [RNF53]
- id: MONDO:0007254
  label: breast cancer
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	d, err := LoadDictionary(path)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	terms, err := d.Annotate(context.Background(), "rnf53")
	require.NoError(t, err)
	assert.Equal(t, []Term{{ID: "HGNC:1100", Label: "BRCA1"}}, terms)

	terms, err = d.Annotate(context.Background(), "unknown thing")
	require.NoError(t, err)
	assert.Empty(t, terms)

	label, err := d.Label(context.Background(), "MONDO:0007254")
	require.NoError(t, err)
	assert.Equal(t, "breast cancer", label)

	_, err = d.Label(context.Background(), "MONDO:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadDictionary_EntriesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entries:\n  - id: X:1\n    label: x\n"), 0o644))

	d, err := LoadDictionary(path)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
}

func TestFilterByPrefix(t *testing.T) {
	terms := []Term{{ID: "HGNC:1"}, {ID: "MONDO:2"}, {ID: "plain"}}
	assert.Equal(t, terms, FilterByPrefix(terms, nil))
	assert.Equal(t, []Term{{ID: "HGNC:1"}}, FilterByPrefix(terms, []string{"hgnc"}))
}

func TestChain(t *testing.T) {
	first := NewDictionary([]DictionaryEntry{{ID: "A:1", Label: "a"}})
	second := LabelerFunc(func(_ context.Context, id string) (string, error) {
		return "from second", nil
	})
	chain := Chain{first, second}

	label, err := chain.Label(context.Background(), "A:1")
	require.NoError(t, err)
	assert.Equal(t, "a", label)

	label, err = chain.Label(context.Background(), "B:1")
	require.NoError(t, err)
	assert.Equal(t, "from second", label)

	_, err = Chain{}.Label(context.Background(), "B:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_Annotators(t *testing.T) {
	dict := NewDictionary([]DictionaryEntry{{ID: "A:1", Label: "a"}})
	reg, err := NewRegistry(RegistryConfig{
		Dictionary: dict,
		Skip:       []string{"bioportal:"},
		Offline:    true,
	})
	require.NoError(t, err)

	got := reg.Annotators([]string{"gilda:", "bioportal:hgnc-nr", "sqlite:obo:hp"})
	require.Len(t, got, 1)
	assert.Same(t, dict, got[0])

	custom := NewDictionary(nil)
	reg.Register("gilda:", custom)
	got = reg.Annotators([]string{"gilda:"})
	require.Len(t, got, 2)
	assert.Same(t, custom, got[1])
}

func TestRegistry_OnlineResolvesOLS(t *testing.T) {
	reg, err := NewRegistry(RegistryConfig{OLS: OLSConfig{BaseURL: "http://127.0.0.1:0"}})
	require.NoError(t, err)

	got := reg.Annotators([]string{"sqlite:obo:hp", "ols:go"})
	require.Len(t, got, 2)
	ols, ok := got[0].(*OLSClient)
	require.True(t, ok)
	assert.Equal(t, "hp", ols.ontology)

	again := reg.Annotators([]string{"sqlite:obo:hp"})
	assert.Same(t, got[0], again[0])
}
