package pipeline

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/concurrent-sales-pipeline/boundedqueue"
	"github.com/sandeepkv93/concurrent-sales-pipeline/metrics"
)

// EventKind labels the pipeline transitions exposed to observers.
type EventKind string

const (
	EventProduced     EventKind = "produced"
	EventConsumed     EventKind = "consumed"
	EventProducerDone EventKind = "producer_done"
	EventConsumerExit EventKind = "consumer_exit"
)

// Event is an informational snapshot of one pipeline transition. Occupancy is
// read after the transition and may already be stale by the time an observer
// sees it; events are not part of the correctness contract.
type Event struct {
	Kind      EventKind `json:"kind"`
	Worker    string    `json:"worker"`
	SaleID    string    `json:"sale_id,omitempty"`
	Cashier   string    `json:"cashier,omitempty"`
	Seq       int       `json:"seq"`
	Amount    float64   `json:"amount,omitempty"`
	Occupancy int       `json:"occupancy"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives pipeline events. Publish must not block the caller.
type EventSink interface {
	Publish(Event)
}

// Config holds the fixed construction parameters of a pipeline run.
type Config struct {
	Capacity         int
	Producers        int
	Consumers        int
	ItemsPerProducer int

	// BatchManager switches the single consumer to the draining mode, where
	// the manager waits for a full buffer and processes it in one sweep.
	// Requires Consumers == 1.
	BatchManager bool

	MinAmount float64
	MaxAmount float64

	Logger  *zap.Logger
	Metrics *metrics.Collector
	Events  EventSink
}

// WorkerResult is the terminal report of one worker.
type WorkerResult struct {
	Worker   string
	Items    int
	Total    float64
	Duration time.Duration
}

// Average returns the mean sale amount handled by the worker.
func (r WorkerResult) Average() float64 {
	if r.Items == 0 {
		return 0
	}
	return r.Total / float64(r.Items)
}

// Handle identifies one spawned worker and lets the caller wait for its
// terminal state.
type Handle struct {
	worker string
	done   chan struct{}
	result WorkerResult
}

// Worker returns the worker's identity, e.g. "cashier-2".
func (h *Handle) Worker() string { return h.worker }

// Join blocks until the worker reaches its terminal state and returns its
// report.
func (h *Handle) Join() WorkerResult {
	<-h.done
	return h.result
}

// Summary aggregates a full run.
type Summary struct {
	Cashiers []WorkerResult
	Managers []WorkerResult

	SalesProduced int
	SalesConsumed int
	TotalProduced float64
	TotalConsumed float64
	Elapsed       time.Duration
}

// Pipeline wires cashiers (producers) and managers (consumers) to one shared
// bounded queue. All shared state lives in the queue; the pipeline itself
// only spawns workers and gathers reports.
type Pipeline struct {
	cfg    Config
	queue  *boundedqueue.Queue[Sale]
	gen    *SaleGenerator
	logger *zap.Logger

	mu         sync.Mutex
	cashierSeq int
	managerSeq int
}

// New validates the configuration and builds the pipeline. Invalid counts
// are rejected here; nothing fails mid-run.
func New(cfg Config) (*Pipeline, error) {
	if cfg.ItemsPerProducer < 0 {
		return nil, fmt.Errorf("pipeline: items per producer must not be negative, got %d", cfg.ItemsPerProducer)
	}
	if cfg.BatchManager && cfg.Consumers != 1 {
		return nil, fmt.Errorf("pipeline: batch manager mode requires exactly one consumer, got %d", cfg.Consumers)
	}
	if cfg.MinAmount == 0 && cfg.MaxAmount == 0 {
		cfg.MinAmount, cfg.MaxAmount = 1, 1000
	}
	if cfg.MinAmount > cfg.MaxAmount {
		return nil, fmt.Errorf("pipeline: sale amount range [%v, %v] is inverted", cfg.MinAmount, cfg.MaxAmount)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	q, err := boundedqueue.New[Sale](cfg.Capacity, cfg.Producers, cfg.Consumers)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:    cfg,
		queue:  q,
		gen:    NewSaleGenerator(cfg.MinAmount, cfg.MaxAmount),
		logger: cfg.Logger,
	}, nil
}

// Queue exposes the shared queue, mainly for occupancy inspection.
func (p *Pipeline) Queue() *boundedqueue.Queue[Sale] { return p.queue }

// SpawnProducer starts one cashier that rings up itemCount sales and then
// announces completion. The returned handle joins on its terminal state.
func (p *Pipeline) SpawnProducer(itemCount int) *Handle {
	p.mu.Lock()
	p.cashierSeq++
	h := &Handle{worker: fmt.Sprintf("cashier-%d", p.cashierSeq), done: make(chan struct{})}
	p.mu.Unlock()

	go p.runProducer(h, itemCount)
	return h
}

// SpawnConsumer starts one manager that drains sales until production has
// ended and the buffer is empty.
func (p *Pipeline) SpawnConsumer() *Handle {
	p.mu.Lock()
	p.managerSeq++
	h := &Handle{worker: fmt.Sprintf("manager-%d", p.managerSeq), done: make(chan struct{})}
	p.mu.Unlock()

	go p.runConsumer(h)
	return h
}

// SpawnBatchManager starts the single draining manager of the batch mode.
func (p *Pipeline) SpawnBatchManager() *Handle {
	p.mu.Lock()
	p.managerSeq++
	h := &Handle{worker: fmt.Sprintf("manager-%d", p.managerSeq), done: make(chan struct{})}
	p.mu.Unlock()

	go p.runBatchManager(h)
	return h
}

func (p *Pipeline) runProducer(h *Handle, itemCount int) {
	start := time.Now()
	total := 0.0

	for seq := 0; seq < itemCount; seq++ {
		sale := p.gen.Next(h.worker, seq)

		waitStart := time.Now()
		p.queue.Put(sale)
		occupancy := p.queue.Len()

		if m := p.cfg.Metrics; m != nil {
			m.ObservePutWait(time.Since(waitStart).Seconds())
			m.IncSalesProduced(h.worker)
			m.SetOccupancy(occupancy)
		}
		p.logger.Debug("sale produced",
			zap.String("worker", h.worker),
			zap.String("saleId", sale.ID),
			zap.Float64("amount", sale.Amount),
			zap.Int("occupancy", occupancy),
		)
		p.publish(Event{
			Kind:      EventProduced,
			Worker:    h.worker,
			SaleID:    sale.ID,
			Cashier:   sale.Cashier,
			Seq:       sale.Seq,
			Amount:    sale.Amount,
			Occupancy: occupancy,
			Timestamp: time.Now(),
		})
		total += sale.Amount
	}

	p.queue.Done()
	remaining := p.queue.ActiveProducers()
	if m := p.cfg.Metrics; m != nil {
		m.SetActiveProducers(remaining)
	}
	p.logger.Info("cashier finished",
		zap.String("worker", h.worker),
		zap.Int("sales", itemCount),
		zap.Int("activeProducers", remaining),
	)
	p.publish(Event{
		Kind:      EventProducerDone,
		Worker:    h.worker,
		Occupancy: p.queue.Len(),
		Timestamp: time.Now(),
	})

	h.result = WorkerResult{Worker: h.worker, Items: itemCount, Total: total, Duration: time.Since(start)}
	close(h.done)
}

func (p *Pipeline) runConsumer(h *Handle) {
	start := time.Now()
	items := 0
	total := 0.0

	for {
		waitStart := time.Now()
		sale, ok := p.queue.Take()
		if !ok {
			break
		}
		occupancy := p.queue.Len()

		if m := p.cfg.Metrics; m != nil {
			m.ObserveTakeWait(time.Since(waitStart).Seconds())
			m.IncSalesConsumed(h.worker)
			m.SetOccupancy(occupancy)
		}
		p.logger.Debug("sale consumed",
			zap.String("worker", h.worker),
			zap.String("saleId", sale.ID),
			zap.Float64("amount", sale.Amount),
			zap.Int("occupancy", occupancy),
		)
		p.publish(Event{
			Kind:      EventConsumed,
			Worker:    h.worker,
			SaleID:    sale.ID,
			Cashier:   sale.Cashier,
			Seq:       sale.Seq,
			Amount:    sale.Amount,
			Occupancy: occupancy,
			Timestamp: time.Now(),
		})

		items++
		total += sale.Amount
	}

	h.result = WorkerResult{Worker: h.worker, Items: items, Total: total, Duration: time.Since(start)}
	p.logger.Info("manager finished",
		zap.String("worker", h.worker),
		zap.Int("sales", items),
		zap.Float64("total", total),
		zap.Float64("average", h.result.Average()),
	)
	p.publish(Event{
		Kind:      EventConsumerExit,
		Worker:    h.worker,
		Occupancy: p.queue.Len(),
		Timestamp: time.Now(),
	})
	close(h.done)
}

func (p *Pipeline) runBatchManager(h *Handle) {
	start := time.Now()
	items := 0
	total := 0.0

	for {
		batch := p.queue.DrainBatch()
		if batch == nil {
			break
		}

		sum := 0.0
		for _, sale := range batch {
			sum += sale.Amount
			if m := p.cfg.Metrics; m != nil {
				m.IncSalesConsumed(h.worker)
			}
		}
		items += len(batch)
		total += sum
		if m := p.cfg.Metrics; m != nil {
			m.SetOccupancy(p.queue.Len())
		}
		p.logger.Info("batch processed",
			zap.String("worker", h.worker),
			zap.Int("sales", len(batch)),
			zap.Float64("average", sum/float64(len(batch))),
		)
		p.publish(Event{
			Kind:      EventConsumed,
			Worker:    h.worker,
			Amount:    sum,
			Occupancy: p.queue.Len(),
			Timestamp: time.Now(),
		})
	}

	h.result = WorkerResult{Worker: h.worker, Items: items, Total: total, Duration: time.Since(start)}
	p.logger.Info("manager finished",
		zap.String("worker", h.worker),
		zap.Int("sales", items),
		zap.Float64("total", total),
		zap.Float64("average", h.result.Average()),
	)
	p.publish(Event{
		Kind:      EventConsumerExit,
		Worker:    h.worker,
		Timestamp: time.Now(),
	})
	close(h.done)
}

func (p *Pipeline) publish(ev Event) {
	if p.cfg.Events != nil {
		p.cfg.Events.Publish(ev)
	}
}

// Run spawns the configured workers, waits for all of them and returns the
// combined summary. A mismatch between produced and consumed totals means
// sales were lost or duplicated and is reported as an error.
func (p *Pipeline) Run() (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	var mu sync.Mutex
	var g errgroup.Group

	for i := 0; i < p.cfg.Producers; i++ {
		h := p.SpawnProducer(p.cfg.ItemsPerProducer)
		g.Go(func() error {
			r := h.Join()
			mu.Lock()
			summary.Cashiers = append(summary.Cashiers, r)
			summary.SalesProduced += r.Items
			summary.TotalProduced += r.Total
			mu.Unlock()
			return nil
		})
	}

	for i := 0; i < p.cfg.Consumers; i++ {
		var h *Handle
		if p.cfg.BatchManager {
			h = p.SpawnBatchManager()
		} else {
			h = p.SpawnConsumer()
		}
		g.Go(func() error {
			r := h.Join()
			mu.Lock()
			summary.Managers = append(summary.Managers, r)
			summary.SalesConsumed += r.Items
			summary.TotalConsumed += r.Total
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	summary.Elapsed = time.Since(start)

	if summary.SalesProduced != summary.SalesConsumed {
		return summary, fmt.Errorf("pipeline: produced %d sales but consumed %d",
			summary.SalesProduced, summary.SalesConsumed)
	}
	return summary, nil
}
