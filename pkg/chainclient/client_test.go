package chainclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigured(t *testing.T) {
	if NewClient("", "").Configured() {
		t.Fatal("a client without a base URL must report unconfigured")
	}
	if !NewClient("http://localhost:9000", "").Configured() {
		t.Fatal("a client with a base URL must report configured")
	}
	var nilClient *Client
	if nilClient.Configured() {
		t.Fatal("a nil client must report unconfigured")
	}
}

func TestAnchorHash_SubmitsDigestWithAuth(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody anchorRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"txHash":"0xdeadbeef"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "gateway-key")
	txHash, err := client.AnchorHash(context.Background(), "ORD-60", "0xabc")
	if err != nil {
		t.Fatalf("AnchorHash returned error: %v", err)
	}
	if txHash != "0xdeadbeef" {
		t.Fatalf("unexpected tx reference: %q", txHash)
	}
	if gotPath != "/api/v1/anchors" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotAuth != "Bearer gateway-key" {
		t.Fatalf("unexpected authorization header: %q", gotAuth)
	}
	if gotBody.ExternalOrderID != "ORD-60" || gotBody.AnchorHash != "0xabc" {
		t.Fatalf("unexpected request payload: %+v", gotBody)
	}
}

func TestAnchorHash_GatewayErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "out of gas", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := NewClient(server.URL, "").AnchorHash(context.Background(), "ORD-61", "0xabc"); err == nil {
		t.Fatal("expected an error for a non-2xx gateway response")
	}
}

func TestAnchorHash_MissingTxHashIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	if _, err := NewClient(server.URL, "").AnchorHash(context.Background(), "ORD-62", "0xabc"); err == nil {
		t.Fatal("expected an error when the gateway omits the tx reference")
	}
}
