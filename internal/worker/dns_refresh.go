package worker

import (
	"context"
	"time"

	"github.com/rs/dnscache"
)

// DNSRefreshWorker periodically refreshes a shared DNS cache, grounded on
// the teacher's inline ticker goroutine in cmd/gandalf/run.go -- pulled
// into a proper Worker so it participates in Runner's errgroup lifecycle
// and graceful shutdown instead of leaking a bare goroutine.
type DNSRefreshWorker struct {
	Resolver *dnscache.Resolver
	Interval time.Duration
}

func (w *DNSRefreshWorker) Name() string { return "dns_refresh" }

// Run refreshes the resolver every Interval until ctx is cancelled.
func (w *DNSRefreshWorker) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.Resolver.Refresh(true)
		}
	}
}
