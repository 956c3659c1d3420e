package platereader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		json.NewEncoder(w).Encode(recognizeResponse{Plate: " aa1234bb ", Found: true})
	}))
	defer srv.Close()

	reader := NewHTTPReader(srv.URL, time.Second)
	plate, err := reader.Recognize(context.Background(), []byte("fake-image"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if plate != "AA1234BB" {
		t.Fatalf("expected normalized plate, got %q", plate)
	}
}

func TestRecognizePlateNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(recognizeResponse{Found: false})
	}))
	defer srv.Close()

	reader := NewHTTPReader(srv.URL, time.Second)
	if _, err := reader.Recognize(context.Background(), []byte("fake-image")); !errors.Is(err, ErrPlateNotFound) {
		t.Fatalf("expected ErrPlateNotFound, got %v", err)
	}
}

func TestRecognizeUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	reader := NewHTTPReader(srv.URL, time.Second)
	_, err := reader.Recognize(context.Background(), []byte("fake-image"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, ErrPlateNotFound) {
		t.Fatalf("upstream failure must not look like a clean not-found")
	}
}

func TestRecognizeRejectsEmptyInput(t *testing.T) {
	reader := NewHTTPReader("http://localhost:1", time.Second)
	if _, err := reader.Recognize(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty image")
	}
	var unconfigured *HTTPReader
	if _, err := unconfigured.Recognize(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected error for unconfigured reader")
	}
}
