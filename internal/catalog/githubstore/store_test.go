package githubstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/almarky/almarky-backend/internal/catalog"
	"github.com/almarky/almarky-backend/pkg/config"
	"github.com/almarky/almarky-backend/pkg/errors"
)

func testConfig(baseURL string) config.CatalogConfig {
	return config.CatalogConfig{
		Owner:      "almarky",
		Repo:       "almarky-catalog",
		Branch:     "main",
		Path:       "products.json",
		Token:      "test-token",
		APIBaseURL: baseURL,
		Timeout:    5 * time.Second,
	}
}

func TestReadDecodesDocumentAndVersion(t *testing.T) {
	doc := `[{"id":"p1","name":"Lamp","price":900,"originalPrice":1000,"discountPercentage":10,"currency":"PKR","inStock":true,"deliveryCharge":150}]`

	var gotPath, gotAuth, gotCache string
	var gotTS bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCache = r.Header.Get("Cache-Control")
		gotTS = r.URL.Query().Get("ts") != ""
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sha":      "abc123",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(doc)),
		})
	}))
	defer server.Close()

	store, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	products, version, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if version != "abc123" {
		t.Fatalf("expected version abc123, got %q", version)
	}
	if len(products) != 1 || products[0].ID != "p1" {
		t.Fatalf("unexpected products %+v", products)
	}
	if gotPath != "/repos/almarky/almarky-catalog/contents/products.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotCache != "no-store" {
		t.Fatalf("expected no-store cache header, got %q", gotCache)
	}
	if !gotTS {
		t.Fatal("expected cache-busting ts query parameter")
	}
}

func TestReadHandlesNewlineWrappedBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(`[]`))
	wrapped := encoded[:2] + "\n" + encoded[2:] + "\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sha":      "v1",
			"encoding": "base64",
			"content":  wrapped,
		})
	}))
	defer server.Close()

	store, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	products, _, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("expected empty catalog, got %+v", products)
	}
}

func TestWriteIfVersionCommitsWithExpectedSHA(t *testing.T) {
	var gotBody putRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": map[string]any{"sha": "def456"},
		})
	}))
	defer server.Close()

	store, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	version, err := store.WriteIfVersion(context.Background(), []catalog.Product{}, "abc123", "catalog: save product p1")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if version != "def456" {
		t.Fatalf("expected new version def456, got %q", version)
	}
	if gotBody.SHA != "abc123" {
		t.Fatalf("expected sha abc123 in request, got %q", gotBody.SHA)
	}
	if gotBody.Branch != "main" {
		t.Fatalf("expected branch main, got %q", gotBody.Branch)
	}
	raw, err := base64.StdEncoding.DecodeString(gotBody.Content)
	if err != nil {
		t.Fatalf("content not base64: %v", err)
	}
	var committed []catalog.Product
	if err := json.Unmarshal(raw, &committed); err != nil {
		t.Fatalf("committed content not valid catalog json: %v", err)
	}
}

func TestWriteIfVersionStaleSHAIsConflict(t *testing.T) {
	for _, status := range []int{http.StatusConflict, http.StatusUnprocessableEntity} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"products.json does not match expected sha"}`))
		}))

		store, err := New(testConfig(server.URL))
		if err != nil {
			t.Fatalf("new store: %v", err)
		}

		_, err = store.WriteIfVersion(context.Background(), nil, "stale", "catalog: save")
		if !errors.Is(err, catalog.ErrVersionConflict) {
			t.Fatalf("status %d: expected version conflict, got %v", status, err)
		}
		server.Close()
	}
}

func TestNewRequiresRepoCoordinates(t *testing.T) {
	if _, err := New(config.CatalogConfig{Path: "products.json"}); err == nil {
		t.Fatal("expected error without owner/repo")
	}
	if _, err := New(config.CatalogConfig{Owner: "almarky", Repo: "catalog"}); err == nil {
		t.Fatal("expected error without document path")
	}
}
