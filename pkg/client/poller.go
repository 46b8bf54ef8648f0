package client

import (
	"context"
	"sync"
	"time"

	"github.com/vyvo/apkforge/backend/pkg/builder"
)

// Fetcher reads the current build record of a project.
type Fetcher interface {
	GetBuild(ctx context.Context, projectID string) (builder.Record, error)
}

// Poller re-reads a project's build record while it is building.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration

	mu        sync.Mutex
	token     uint64
	projectID string
	cancel    context.CancelFunc
}

func NewPoller(fetcher Fetcher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{fetcher: fetcher, interval: interval}
}

// Watch switches the poller to projectID, cancelling any previous watch. fn is
// only called with records of the currently watched project and runs while the
// poller's lock is held, so it must not call Watch or Stop. An empty projectID
// deselects. The returned channel closes when this watch ends.
func (p *Poller) Watch(ctx context.Context, projectID string, fn func(builder.Record)) <-chan struct{} {
	done := make(chan struct{})

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.token++
	token := p.token
	p.projectID = projectID
	if projectID == "" {
		p.mu.Unlock()
		close(done)
		return done
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		_, _ = p.poll(ctx, projectID, func(rec builder.Record) bool {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.token != token || p.projectID != projectID || rec.ProjectID != projectID {
				return false
			}
			fn(rec)
			return true
		})
	}()
	return done
}

// Stop ends the current watch.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.token++
	p.projectID = ""
}

// Run polls projectID until the record leaves building and returns the last
// record seen.
func (p *Poller) Run(ctx context.Context, projectID string, fn func(builder.Record)) (builder.Record, error) {
	return p.poll(ctx, projectID, func(rec builder.Record) bool {
		if fn != nil {
			fn(rec)
		}
		return true
	})
}

func (p *Poller) poll(ctx context.Context, projectID string, deliver func(builder.Record) bool) (builder.Record, error) {
	var last builder.Record
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		rec, err := p.fetcher.GetBuild(ctx, projectID)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			// not-found and transport errors both end the poll
			return last, err
		}
		if !deliver(rec) {
			return last, context.Canceled
		}
		last = rec
		if rec.Status != builder.StatusBuilding {
			return last, nil
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
