package logging

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	defaultLogtailHost = "in.logs.betterstack.com"
	logtailBatchSize   = 100
	logtailInterval    = 2 * time.Second
)

// LogtailWriter ships JSON log lines to Better Stack (Logtail) in batches.
// Delivery is best effort; failures go to stderr and the batch is dropped.
type LogtailWriter struct {
	endpoint string
	token    string
	httpc    *http.Client

	mu      sync.Mutex
	pending [][]byte

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewLogtailWriter(host, token string) *LogtailWriter {
	return newLogtailWriter(host, token, logtailInterval)
}

func newLogtailWriter(host, token string, interval time.Duration) *LogtailWriter {
	if host == "" {
		host = defaultLogtailHost
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	w := &LogtailWriter{
		endpoint: host,
		token:    token,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop(interval)
	return w
}

// Write queues one zerolog event.
func (w *LogtailWriter) Write(p []byte) (int, error) {
	line := bytes.TrimSpace(p)
	if len(line) == 0 {
		return len(p), nil
	}
	cp := make([]byte, len(line))
	copy(cp, line)

	w.mu.Lock()
	w.pending = append(w.pending, cp)
	full := len(w.pending) >= logtailBatchSize
	w.mu.Unlock()

	if full {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

func (w *LogtailWriter) loop(interval time.Duration) {
	defer close(w.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-w.kick:
		case <-w.stop:
			w.flush(context.Background())
			return
		}
		w.flush(context.Background())
	}
}

func (w *LogtailWriter) flush(ctx context.Context) {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	body := make([]byte, 0, 64*len(batch))
	body = append(body, '[')
	body = append(body, bytes.Join(batch, []byte(","))...)
	body = append(body, ']')

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logtail: build request: %v\n", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.httpc.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logtail: dropped %d lines: %v\n", len(batch), err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "logtail: dropped %d lines: status %d\n", len(batch), resp.StatusCode)
	}
}

// Flush ships what is queued now, without waiting for the next tick.
func (w *LogtailWriter) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flush(ctx)
}

// Close flushes what is queued and stops the background loop.
func (w *LogtailWriter) Close() error {
	w.once.Do(func() { close(w.stop) })
	<-w.done
	return nil
}
