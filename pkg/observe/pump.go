package observe

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/lwm2mcore/pkg/log"
)

// Pending is one group ready to be built into a notification message:
// every member whose Pending flag is set, sharing a token/accept/
// content-format.
type Pending struct {
	SSID          uint16
	Token         string
	ContentFormat int
	Accept        int
	Members       []*Observation
}

// Sender builds and transmits the notification payload for a Pending
// group. A nil error confirms delivery of the whole group, and the pump
// then updates LastSent/LastNotify for every member (spec §4.7.5's
// SEND-CONFIRMATION step); on error every member stays Pending and is
// retried on the next tick.
type Sender interface {
	Send(p Pending, now time.Time) error
}

// Pump is the ticker-driven evaluation loop of spec §4.7.5/§4.7.6: on
// each tick, and as soon as possible after NotifyChanged reports a data
// model change, it re-evaluates every active observation and drives a
// Sender for whatever became pending. Grounded on the teacher's
// Reconciler: a ticker loop guarded by its own lock, ticking against
// otherwise single-threaded-owned state (here, the Table), started/
// stopped explicitly rather than tied to a context.
type Pump struct {
	table  *Table
	values ValueReader
	sender Sender
	logger zerolog.Logger

	interval  time.Duration
	mu        sync.Mutex
	stopCh    chan struct{}
	changedCh chan struct{}
	lastTick  time.Time
}

// NewPump creates a Pump that ticks every interval.
func NewPump(table *Table, values ValueReader, sender Sender, interval time.Duration) *Pump {
	return &Pump{
		table:     table,
		values:    values,
		sender:    sender,
		logger:    log.WithComponent("observe.pump"),
		interval:  interval,
		changedCh: make(chan struct{}, 1),
	}
}

// NotifyChanged schedules an immediate re-evaluation on the next run
// loop iteration, coalescing with any already-pending notification.
// Safe to call from a dm.Watcher callback: it never touches the Table
// or the data model itself, only signals the run loop to do so once
// the caller's lock (the data model's) is no longer held.
func (p *Pump) NotifyChanged() {
	select {
	case p.changedCh <- struct{}{}:
	default:
	}
}

// Start begins the ticker loop in a background goroutine.
func (p *Pump) Start() {
	p.mu.Lock()
	if p.stopCh != nil {
		p.mu.Unlock()
		return
	}
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	go p.run(stopCh)
}

// Stop ends the ticker loop.
func (p *Pump) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh == nil {
		return
	}
	close(p.stopCh)
	p.stopCh = nil
}

func (p *Pump) run(stopCh chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().Msg("notification pump started")
	for {
		select {
		case <-ticker.C:
			p.Tick(time.Now())
		case <-p.changedCh:
			p.Tick(time.Now())
		case <-stopCh:
			p.logger.Info().Msg("notification pump stopped")
			return
		}
	}
}

// LastTick reports when Tick last ran, for liveness monitoring (see
// pkg/metrics's staleness-gated readiness check on "observe_pump").
// The zero value means Tick has never run.
func (p *Pump) LastTick() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTick
}

// Tick re-evaluates every active, non-pending observation against its
// freshly sampled current value, marking those that fire as Pending,
// then hands every group with at least one pending member to the
// Sender. At most one notification per observation may be in flight:
// once Pending is set it is not re-evaluated against new triggers, only
// retried, until confirmSent clears it — collapsing any re-triggers in
// between into the single pending send already queued.
func (p *Pump) Tick(now time.Time) {
	p.mu.Lock()
	p.lastTick = now
	p.mu.Unlock()

	p.table.mu.Lock()
	var toSend []Pending
	for _, g := range p.table.groups {
		var pendingMembers []*Observation
		for _, obs := range g.members {
			if !obs.Active {
				continue
			}
			if !obs.Pending {
				if current, ok := p.values.ReadCurrent(obs.Path); ok && shouldNotify(obs, now, current) {
					obs.Pending = true
				}
			}
			if obs.Pending {
				pendingMembers = append(pendingMembers, obs)
			}
		}
		if len(pendingMembers) > 0 {
			toSend = append(toSend, Pending{
				SSID: g.ssid, Token: g.token,
				ContentFormat: g.contentFormat, Accept: g.accept,
				Members: pendingMembers,
			})
		}
	}
	p.table.mu.Unlock()

	for _, batch := range toSend {
		if err := p.sender.Send(batch, now); err != nil {
			p.logger.Error().Err(err).Str("token", batch.Token).Msg("notification send failed")
			continue
		}
		p.confirmSent(batch, now)
	}
}

// confirmSent implements the SEND-CONFIRMATION step: updates
// last_notify_timestamp/last_sent_value and clears notification_to_send
// for every member that was part of a successfully sent batch.
func (p *Pump) confirmSent(batch Pending, sentAt time.Time) {
	p.table.mu.Lock()
	defer p.table.mu.Unlock()
	for _, obs := range batch.Members {
		if v, ok := p.values.ReadCurrent(obs.Path); ok {
			obs.LastSent = v
		}
		obs.LastNotify = sentAt
		obs.Pending = false
	}
}
