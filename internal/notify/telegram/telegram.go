// Package telegram delivers reminders as timed Telegram messages.
//
// Each delivered message carries an acknowledge button; pressing it
// publishes the user-interaction confirmation, giving the core the same
// two confirmation channels the local adapter provides.
package telegram

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"shiftwatch/internal/eventbus"
	"shiftwatch/internal/notify"
	logx "shiftwatch/pkg/logx"
)

const ackUnique = "sw_ack"

type Config struct {
	Token       string
	ChatID      int64
	PollTimeout time.Duration
}

type Port struct {
	mu     sync.Mutex
	closed bool
	reqs   map[string]notify.Request
	timers map[string]*time.Timer

	bot  *tele.Bot
	chat *tele.Chat
	bus  eventbus.Bus
	log  logx.Logger
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) (*Port, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}

	p := &Port{
		reqs:   map[string]notify.Request{},
		timers: map[string]*time.Timer{},
		bot:    b,
		chat:   &tele.Chat{ID: cfg.ChatID},
		bus:    bus,
		log:    log,
	}

	ackBtn := tele.Btn{Unique: ackUnique}
	b.Handle(&ackBtn, func(c tele.Context) error {
		id := strings.TrimSpace(c.Data())
		if id != "" && p.bus != nil {
			p.bus.Publish(eventbus.Event{
				Type: eventbus.TypeUserInteraction,
				Data: eventbus.DeliveryData{ID: id, At: time.Now()},
			})
		}
		return c.Respond(&tele.CallbackResponse{Text: "Acknowledged"})
	})

	return p, nil
}

// Start begins long polling until ctx is done.
func (p *Port) Start(ctx context.Context) {
	go p.bot.Start()
	go func() {
		<-ctx.Done()
		p.Close()
	}()
}

func (p *Port) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.reqs = map[string]notify.Request{}
	p.mu.Unlock()

	// telebot Stop is expected to be fast; run it async just in case.
	go p.bot.Stop()
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

	if t, ok := p.timers[req.ID]; ok {
		t.Stop()
	}
	p.reqs[req.ID] = req

	delay := time.Until(req.TriggerAt)
	if delay < 0 {
		delay = 0
	}
	id := req.ID
	p.timers[id] = time.AfterFunc(delay, func() { p.deliver(id) })
	return nil
}

func (p *Port) deliver(id string) {
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

	markup := &tele.ReplyMarkup{}
	btn := markup.Data("Got it", ackUnique, req.ID)
	markup.Inline(markup.Row(btn))

	text := req.Payload.Title
	if req.Payload.Body != "" {
		text += "\n" + req.Payload.Body
	}

	if _, err := p.bot.Send(p.chat, text, markup); err != nil {
		p.log.Warn("telegram send failed", logx.String("id", req.ID), logx.Err(err))
		return
	}
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
