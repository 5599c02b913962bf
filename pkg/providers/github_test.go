package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
)

// fakeGitHub serves just enough of the contents API and raw-content surface
// to exercise GitHubProvider: a single extension "example-source" at
// version "1.0.0".
func fakeGitHub(t *testing.T) (api, raw *httptest.Server) {
	t.Helper()

	manifest := `{"id":"example-source","name":"example-source","version":"1.0.0","base_urls":["example.com"],"wasm_file":{"path":"extension.wasm","checksum":"sha256:deadbeef","size":4}}`

	api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/repos/octo/store"):
			json.NewEncoder(w).Encode(map[string]string{"default_branch": "main"})
		case strings.Contains(r.URL.Path, "/contents/extensions/example-source/versions"):
			json.NewEncoder(w).Encode([]map[string]string{{"name": "1.0.0", "type": "dir"}})
		case strings.HasSuffix(r.URL.Path, "/contents/extensions"):
			json.NewEncoder(w).Encode([]map[string]string{{"name": "example-source", "type": "dir"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(api.Close)

	raw = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "manifest.json"):
			w.Write([]byte(manifest))
		case strings.HasSuffix(r.URL.Path, "extension.wasm"):
			w.Write([]byte("wasm-bytes"))
		case strings.HasSuffix(r.URL.Path, "latest.txt"):
			w.Write([]byte("1.0.0"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(raw.Close)

	return api, raw
}

func TestGitHubProviderNaiveModeDefaultsToMain(t *testing.T) {
	p, err := NewGitHubProvider(context.Background(), GitHubProviderConfig{Owner: "octo", Repo: "store"})
	require.NoError(t, err)
	assert.Equal(t, "main", p.ref)
}

func TestGitHubProviderAsyncModeResolvesDefaultBranch(t *testing.T) {
	api, raw := fakeGitHub(t)

	p, err := NewGitHubProvider(context.Background(), GitHubProviderConfig{
		Owner: "octo", Repo: "store", Async: true, APIBase: api.URL, RawBase: raw.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, "main", p.ref)
}

func TestGitHubProviderListExtensionsAndGetPackage(t *testing.T) {
	api, raw := fakeGitHub(t)

	p, err := NewGitHubProvider(context.Background(), GitHubProviderConfig{
		Owner: "octo", Repo: "store", Ref: "main", APIBase: api.URL, RawBase: raw.URL,
	})
	require.NoError(t, err)

	ids, err := p.ListExtensions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"example-source"}, ids)

	versions, err := p.ListExtensionVersions(context.Background(), "example-source")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0"}, versions)

	pkg, err := p.GetExtensionPackage(context.Background(), "example-source", "")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", pkg.Manifest.Version)
	assert.Equal(t, []byte("wasm-bytes"), pkg.WASM)
	assert.Equal(t, "github:octo/store", pkg.Source)
}

func TestGitHubProviderGetRawReturnsExtensionNotFoundOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := &GitHubProvider{owner: "octo", repo: "store", ref: "main", client: srv.Client(), cache: make(map[string]cacheEntry)}
	_, err := p.getRaw(context.Background(), srv.URL, false)
	require.Error(t, err)
	assert.True(t, quelleerr.Is(err, quelleerr.ExtensionNotFound))
}

func TestGitHubProviderGetRawCachesSuccessfulResponses(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	p := &GitHubProvider{
		owner: "octo", repo: "store", ref: "main",
		client: srv.Client(), cache: make(map[string]cacheEntry), ttl: time.Hour,
	}

	_, err := p.getRaw(context.Background(), srv.URL, true)
	require.NoError(t, err)
	_, err = p.getRaw(context.Background(), srv.URL, true)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
