package livefeed

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sandeepkv93/concurrent-sales-pipeline/metrics"
	"github.com/sandeepkv93/concurrent-sales-pipeline/pipeline"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func TestHealthEndpoint(t *testing.T) {
	feed := New(nil)
	server := httptest.NewServer(feed.Handler(prometheus.NewRegistry()))
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	collector.IncSalesProduced("cashier-1")

	feed := New(nil)
	server := httptest.NewServer(feed.Handler(registry))
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("Metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics body: %v", err)
	}
	if !strings.Contains(string(body), "salespipeline_sales_produced_total") {
		t.Error("Expected pipeline metrics in /metrics output")
	}
}

func TestEventBroadcast(t *testing.T) {
	feed := New(nil)
	server := httptest.NewServer(feed.Handler(prometheus.NewRegistry()))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("Websocket dial failed: %v", err)
	}
	defer conn.Close()

	// Wait for the subscriber to register before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for feed.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sent := pipeline.Event{
		Kind:      pipeline.EventProduced,
		Worker:    "cashier-1",
		SaleID:    "sale-1",
		Cashier:   "cashier-1",
		Seq:       0,
		Amount:    42.5,
		Occupancy: 1,
		Timestamp: time.Now(),
	}
	feed.Publish(sent)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var got pipeline.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}
	if got.Kind != pipeline.EventProduced || got.Worker != "cashier-1" || got.Amount != 42.5 {
		t.Errorf("Unexpected event: %+v", got)
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	feed := New(nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			feed.Publish(pipeline.Event{Kind: pipeline.EventProduced, Seq: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked without subscribers")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	feed := New(nil)
	server := httptest.NewServer(feed.Handler(prometheus.NewRegistry()))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("Websocket dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for feed.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Never read from the connection; overflow the send queue several times.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sendQueueSize*10; i++ {
			feed.Publish(pipeline.Event{Kind: pipeline.EventProduced, Seq: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
