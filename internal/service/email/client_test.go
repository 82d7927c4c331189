package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

func testOrder() domain.Order {
	return domain.Order{
		ID:      "order-1",
		UserID:  "user-1",
		Number:  "00001234-abcd1234",
		Address: "Lenina 1, Moscow",
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "product-1", Qty: 2, PriceMinor: 1000},
			{ID: "item-2", ProductID: "product-2", Qty: 1, PriceMinor: 500},
		},
	}
}

func TestClient_SendOrderConfirmation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/send-email" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token-123" {
			t.Fatalf("missing bearer token: %s", r.Header.Get("Authorization"))
		}

		var payload struct {
			OrderID    string `json:"order_id"`
			Number     string `json:"number"`
			TotalMinor int64  `json:"total_minor"`
			Items      []struct {
				ProductID string `json:"product_id"`
			} `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if payload.OrderID != "order-1" || payload.TotalMinor != 2500 || len(payload.Items) != 2 {
			t.Fatalf("unexpected payload: %+v", payload)
		}

		_, _ = w.Write([]byte("email sent to user-1"))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	response, err := client.SendOrderConfirmation(context.Background(), "token-123", testOrder())
	if err != nil {
		t.Fatalf("send confirmation: %v", err)
	}
	if response != "email sent to user-1" {
		t.Fatalf("unexpected response: %s", response)
	}
}

func TestClient_SendOrderConfirmationRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "smtp unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.SendOrderConfirmation(context.Background(), "token-123", testOrder())
	remote, ok := domain.AsRemoteError(err)
	if !ok {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Service != "email" || remote.StatusCode != http.StatusBadGateway {
		t.Fatalf("unexpected remote error: %+v", remote)
	}
}

func TestClient_SendOrderConfirmationAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	response, err := client.SendOrderConfirmation(context.Background(), "token-123", testOrder())
	if err != nil {
		t.Fatalf("send confirmation: %v", err)
	}
	if response != "queued" {
		t.Fatalf("unexpected response: %s", response)
	}
}
