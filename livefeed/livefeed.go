package livefeed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sandeepkv93/concurrent-sales-pipeline/pipeline"
)

const (
	sendQueueSize = 100
	pingInterval  = 30 * time.Second
)

// Feed broadcasts pipeline events to websocket subscribers and serves the
// metrics and health endpoints next to them. It observes the pipeline, it
// never carries queue traffic: a slow or dead subscriber loses events rather
// than blocking a worker.
type Feed struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[string]*subscriber
	nextID int
}

type subscriber struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

// New creates an empty feed.
func New(logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		logger: logger,
		conns:  make(map[string]*subscriber),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish implements pipeline.EventSink. Events that cannot be queued for a
// subscriber are dropped for that subscriber.
func (f *Feed) Publish(ev pipeline.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		f.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	f.mu.Lock()
	for _, sub := range f.conns {
		select {
		case sub.send <- data:
		default:
			// Subscriber is not keeping up; skip it for this event.
		}
	}
	f.mu.Unlock()
}

// Handler returns the HTTP handler with the /ws, /metrics and /health
// mounts.
func (f *Feed) Handler(registry prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.serveWS)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Subscribers returns the current subscriber count.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// Close disconnects every subscriber.
func (f *Feed) Close() {
	f.mu.Lock()
	for id, sub := range f.conns {
		sub.ws.Close()
		delete(f.conns, id)
	}
	f.mu.Unlock()
}

func (f *Feed) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error("Websocket upgrade failed", zap.Error(err))
		return
	}

	f.mu.Lock()
	f.nextID++
	sub := &subscriber{
		id:   fmt.Sprintf("feed-%d", f.nextID),
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
	}
	f.conns[sub.id] = sub
	f.mu.Unlock()

	f.logger.Info("Feed subscriber connected", zap.String("subscriber", sub.id))

	go f.writer(sub)
	f.reader(sub)
}

// reader drains incoming frames until the connection dies, then unregisters.
func (f *Feed) reader(sub *subscriber) {
	defer func() {
		sub.ws.Close()
		f.mu.Lock()
		delete(f.conns, sub.id)
		f.mu.Unlock()
		f.logger.Info("Feed subscriber disconnected", zap.String("subscriber", sub.id))
	}()

	for {
		if _, _, err := sub.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writer(sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-sub.send:
			if !ok {
				return
			}
			if err := sub.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := sub.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
