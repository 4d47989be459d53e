// Package memory is a deterministic in-memory delivery port used by
// tests and the dry-run preview mode. Delivery never happens on its
// own; tests drive it explicitly via Fire and Interact.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"shiftwatch/internal/eventbus"
	"shiftwatch/internal/notify"
)

type Port struct {
	mu   sync.Mutex
	auth notify.AuthStatus
	reqs map[string]notify.Request
	bus  eventbus.Bus

	submitErr error // returned by the next Submit call, then cleared
	submits   int
	cancels   int
}

func New(bus eventbus.Bus) *Port {
	return &Port{
		auth: notify.AuthAuthorized,
		reqs: map[string]notify.Request{},
		bus:  bus,
	}
}

func (p *Port) SetAuthorization(s notify.AuthStatus) {
	p.mu.Lock()
	p.auth = s
	p.mu.Unlock()
}

// FailNextSubmit makes the next Submit return err.
func (p *Port) FailNextSubmit(err error) {
	p.mu.Lock()
	p.submitErr = err
	p.mu.Unlock()
}

func (p *Port) AuthorizationStatus(ctx context.Context) (notify.AuthStatus, error) {
	if err := ctx.Err(); err != nil {
		return notify.AuthNotDetermined, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auth, nil
}

func (p *Port) Submit(ctx context.Context, req notify.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submits++
	if p.submitErr != nil {
		err := p.submitErr
		p.submitErr = nil
		return err
	}
	p.reqs[req.ID] = req
	return nil
}

func (p *Port) Cancel(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels++
	for _, id := range ids {
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

// Fire simulates the platform presenting the request in the foreground.
func (p *Port) Fire(id string) {
	p.mu.Lock()
	_, ok := p.reqs[id]
	if ok {
		delete(p.reqs, id)
	}
	bus := p.bus
	p.mu.Unlock()
	if ok && bus != nil {
		bus.Publish(eventbus.Event{
			Type: eventbus.TypeForegroundDelivery,
			Data: eventbus.DeliveryData{ID: id, At: time.Now()},
		})
	}
}

// Interact simulates the user tapping the delivered request.
func (p *Port) Interact(id string) {
	p.mu.Lock()
	bus := p.bus
	delete(p.reqs, id)
	p.mu.Unlock()
	if bus != nil {
		bus.Publish(eventbus.Event{
			Type: eventbus.TypeUserInteraction,
			Data: eventbus.DeliveryData{ID: id, At: time.Now()},
		})
	}
}

// Counts reports submit/cancel call totals (test bookkeeping).
func (p *Port) Counts() (submits, cancels int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submits, p.cancels
}
