// Package local is the default delivery adapter: reminders are armed on
// in-process timers and presented through the logger when due. Each
// presentation publishes the foreground-delivery confirmation, which is
// what makes the self-test verifier work offline.
package local

import (
	"context"
	"sort"
	"sync"
	"time"

	"shiftwatch/internal/eventbus"
	"shiftwatch/internal/notify"
	logx "shiftwatch/pkg/logx"
)

type Port struct {
	mu     sync.Mutex
	closed bool
	reqs   map[string]notify.Request
	timers map[string]*time.Timer

	bus eventbus.Bus
	log logx.Logger
}

func New(bus eventbus.Bus, log logx.Logger) *Port {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Port{
		reqs:   map[string]notify.Request{},
		timers: map[string]*time.Timer{},
		bus:    bus,
		log:    log,
	}
}

func (p *Port) AuthorizationStatus(ctx context.Context) (notify.AuthStatus, error) {
	if err := ctx.Err(); err != nil {
		return notify.AuthNotDetermined, err
	}
	return notify.AuthAuthorized, nil
}

func (p *Port) Submit(ctx context.Context, req notify.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return context.Canceled
	}

	// Resubmitting an ID replaces the pending request.
	if t, ok := p.timers[req.ID]; ok {
		t.Stop()
	}
	p.reqs[req.ID] = req

	delay := time.Until(req.TriggerAt)
	if delay < 0 {
		delay = 0
	}
	id := req.ID
	p.timers[id] = time.AfterFunc(delay, func() { p.present(id) })
	return nil
}

func (p *Port) present(id string) {
	p.mu.Lock()
	req, ok := p.reqs[id]
	if ok {
		delete(p.reqs, id)
		delete(p.timers, id)
	}
	closed := p.closed
	p.mu.Unlock()
	if !ok || closed {
		return
	}

	p.log.Info("reminder",
		logx.String("id", req.ID),
		logx.String("kind", req.Payload.Kind),
		logx.String("title", req.Payload.Title),
		logx.String("body", req.Payload.Body),
	)
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{
			Type: eventbus.TypeForegroundDelivery,
			Data: eventbus.DeliveryData{ID: req.ID, At: time.Now()},
		})
	}
}

func (p *Port) Cancel(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		if t, ok := p.timers[id]; ok {
			t.Stop()
			delete(p.timers, id)
		}
		delete(p.reqs, id)
	}
	return nil
}

func (p *Port) Pending(ctx context.Context) ([]notify.Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.Pending, 0, len(p.reqs))
	for _, r := range p.reqs {
		out = append(out, notify.Pending{ID: r.ID, TriggerAt: r.TriggerAt, Title: r.Payload.Title})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TriggerAt.Equal(out[j].TriggerAt) {
			return out[i].TriggerAt.Before(out[j].TriggerAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close stops all armed timers. Pending requests are dropped.
func (p *Port) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.reqs = map[string]notify.Request{}
}
