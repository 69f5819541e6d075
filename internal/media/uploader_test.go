package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/almarky/almarky-backend/pkg/config"
	"github.com/almarky/almarky-backend/pkg/errors"
	"github.com/almarky/almarky-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testDataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("fake-jpeg-bytes"))
}

func newTestService(t *testing.T, serverURL string) Service {
	t.Helper()
	svc, err := NewService(config.CloudinaryConfig{
		CloudName:    "almarky",
		UploadPreset: "storefront_unsigned",
		UploadURL:    serverURL,
		MaxUploadMB:  5,
	}, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestUploadPostsMultipartFormAndReturnsSecureURL(t *testing.T) {
	var gotPath, gotPreset, gotFile string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotPreset = r.FormValue("upload_preset")
		gotFile = r.FormValue("file")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"secure_url": "https://res.cloudinary.com/almarky/image/upload/v1/abc.jpg",
			"public_id":  "abc",
		})
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	url, err := svc.Upload(context.Background(), testDataURL())
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://res.cloudinary.com/almarky/image/upload/v1/abc.jpg" {
		t.Fatalf("unexpected url %q", url)
	}
	if gotPath != "/almarky/image/upload" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotPreset != "storefront_unsigned" {
		t.Fatalf("unexpected preset %q", gotPreset)
	}
	if !strings.HasPrefix(gotFile, "data:image/jpeg;base64,") {
		t.Fatalf("expected data url forwarded, got %q", gotFile)
	}
}

func TestUploadRejectsNonImagePayload(t *testing.T) {
	svc := newTestService(t, "http://unused.invalid")
	_, err := svc.Upload(context.Background(), "data:text/plain;base64,aGk=")
	if errors.CodeOf(err) != errors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestUploadRejectsOversizedPayload(t *testing.T) {
	svc, err := NewService(config.CloudinaryConfig{
		CloudName:    "almarky",
		UploadPreset: "storefront_unsigned",
		MaxUploadMB:  1,
	}, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	big := "data:image/png;base64," + strings.Repeat("A", 2*1024*1024)
	_, err = svc.Upload(context.Background(), big)
	if errors.CodeOf(err) != errors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestUploadSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Upload preset not found"}}`))
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	_, err := svc.Upload(context.Background(), testDataURL())
	if errors.CodeOf(err) != errors.CodeDependency {
		t.Fatalf("expected DEPENDENCY_ERROR, got %v", err)
	}
}
