package product

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

func TestClient_GetQuantity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/products/product-1" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token-123" {
			t.Fatalf("missing bearer token: %s", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(`{"quantity": 42}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	qty, err := client.GetQuantity(context.Background(), "token-123", "product-1")
	if err != nil {
		t.Fatalf("get quantity: %v", err)
	}
	if qty != 42 {
		t.Fatalf("unexpected quantity: %d", qty)
	}
}

func TestClient_SetQuantity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/products/product-1" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var payload struct {
			Quantity int64 `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if payload.Quantity != 40 {
			t.Fatalf("unexpected quantity in body: %d", payload.Quantity)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	if err := client.SetQuantity(context.Background(), "token-123", "product-1", 40); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
}

func TestClient_RemoteErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "product not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)

	_, err := client.GetQuantity(context.Background(), "token-123", "missing")
	remote, ok := domain.AsRemoteError(err)
	if !ok || remote.Service != "product" || remote.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected get error: %v", err)
	}

	err = client.SetQuantity(context.Background(), "token-123", "missing", 1)
	if _, ok := domain.AsRemoteError(err); !ok {
		t.Fatalf("expected RemoteError on set, got %v", err)
	}
}

func TestClient_EscapesProductID(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"quantity": 0}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	if _, err := client.GetQuantity(context.Background(), "token", "a/b"); err != nil {
		t.Fatalf("get quantity: %v", err)
	}
	if gotPath != "/products/a%2Fb" {
		t.Fatalf("product id is not escaped: %s", gotPath)
	}
}
