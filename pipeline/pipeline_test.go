package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sandeepkv93/concurrent-sales-pipeline/metrics"
)

// captureSink records published events for inspection.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *captureSink) byKind(kind EventKind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	if _, err := New(Config{Capacity: 0, Producers: 1, Consumers: 1}); err == nil {
		t.Error("Expected error for zero capacity")
	}
	if _, err := New(Config{Capacity: 1, Producers: 1, Consumers: 1, ItemsPerProducer: -1}); err == nil {
		t.Error("Expected error for negative items per producer")
	}
	if _, err := New(Config{Capacity: 1, Producers: 1, Consumers: 2, BatchManager: true}); err == nil {
		t.Error("Expected error for batch manager with two consumers")
	}
	if _, err := New(Config{Capacity: 1, Producers: 1, Consumers: 1, MinAmount: 10, MaxAmount: 5}); err == nil {
		t.Error("Expected error for inverted amount range")
	}
}

func TestSpawnAndJoinConservation(t *testing.T) {
	p, err := New(Config{Capacity: 3, Producers: 2, Consumers: 2})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	producers := []*Handle{p.SpawnProducer(40), p.SpawnProducer(25)}
	consumers := []*Handle{p.SpawnConsumer(), p.SpawnConsumer()}

	produced := 0
	for _, h := range producers {
		produced += h.Join().Items
	}
	consumed := 0
	for _, h := range consumers {
		consumed += h.Join().Items
	}

	if produced != 65 {
		t.Errorf("Expected 65 sales produced, got %d", produced)
	}
	if consumed != produced {
		t.Errorf("Produced %d sales but consumed %d", produced, consumed)
	}
	if occ := p.Queue().Len(); occ != 0 {
		t.Errorf("Expected empty queue after join, got occupancy %d", occ)
	}
}

func TestRunSummary(t *testing.T) {
	sink := &captureSink{}
	p, err := New(Config{
		Capacity:         4,
		Producers:        3,
		Consumers:        2,
		ItemsPerProducer: 30,
		Events:           sink,
		Metrics:          metrics.NewCollector(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	summary, err := p.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.SalesProduced != 90 || summary.SalesConsumed != 90 {
		t.Errorf("Expected 90/90, got %d/%d", summary.SalesProduced, summary.SalesConsumed)
	}
	if diff := summary.TotalProduced - summary.TotalConsumed; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Totals differ: produced %v, consumed %v", summary.TotalProduced, summary.TotalConsumed)
	}
	if len(summary.Cashiers) != 3 || len(summary.Managers) != 2 {
		t.Errorf("Expected 3 cashiers and 2 managers, got %d and %d",
			len(summary.Cashiers), len(summary.Managers))
	}

	if got := len(sink.byKind(EventProduced)); got != 90 {
		t.Errorf("Expected 90 produced events, got %d", got)
	}
	if got := len(sink.byKind(EventConsumed)); got != 90 {
		t.Errorf("Expected 90 consumed events, got %d", got)
	}
	if got := len(sink.byKind(EventProducerDone)); got != 3 {
		t.Errorf("Expected 3 producer done events, got %d", got)
	}
	if got := len(sink.byKind(EventConsumerExit)); got != 2 {
		t.Errorf("Expected 2 consumer exit events, got %d", got)
	}
}

// Every cashier's sales must be consumed in that cashier's emission order.
// A single manager is used so that the event order is the take order.
func TestConsumptionPreservesCashierOrder(t *testing.T) {
	sink := &captureSink{}
	p, err := New(Config{
		Capacity:         2,
		Producers:        3,
		Consumers:        1,
		ItemsPerProducer: 50,
		Events:           sink,
	})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	if _, err := p.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	perCashier := make(map[string][]int)
	for _, ev := range sink.byKind(EventConsumed) {
		perCashier[ev.Cashier] = append(perCashier[ev.Cashier], ev.Seq)
	}

	if len(perCashier) != 3 {
		t.Fatalf("Expected sales from 3 cashiers, got %d", len(perCashier))
	}
	for cashier, seqs := range perCashier {
		if len(seqs) != 50 {
			t.Fatalf("Cashier %s: expected 50 sales, got %d", cashier, len(seqs))
		}
		for i, seq := range seqs {
			if seq != i {
				t.Errorf("Cashier %s: position %d holds sequence %d", cashier, i, seq)
				break
			}
		}
	}
}

func TestBatchManagerMode(t *testing.T) {
	p, err := New(Config{
		Capacity:         5,
		Producers:        3,
		Consumers:        1,
		ItemsPerProducer: 20,
		BatchManager:     true,
	})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	summary, err := p.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.SalesConsumed != 60 {
		t.Errorf("Expected 60 sales consumed in batches, got %d", summary.SalesConsumed)
	}
}

func TestZeroItemProducersStillTerminate(t *testing.T) {
	p, err := New(Config{Capacity: 1, Producers: 2, Consumers: 2})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	handles := []*Handle{
		p.SpawnProducer(0),
		p.SpawnProducer(0),
		p.SpawnConsumer(),
		p.SpawnConsumer(),
	}

	finished := make(chan struct{})
	go func() {
		for _, h := range handles {
			h.Join()
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Workers did not terminate with zero items")
	}
}

func TestSaleGeneratorRange(t *testing.T) {
	g := NewSaleGenerator(1, 1000)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := g.Next("cashier-1", i)
		if s.Amount < 1 || s.Amount > 1000 {
			t.Errorf("Amount %v out of range", s.Amount)
		}
		if s.Seq != i {
			t.Errorf("Expected seq %d, got %d", i, s.Seq)
		}
		if seen[s.ID] {
			t.Errorf("Duplicate sale ID %s", s.ID)
		}
		seen[s.ID] = true
	}
}
