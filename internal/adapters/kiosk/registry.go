// Package kiosk runs the kiosk terminals: one state machine per physical
// device, an idle ticker while a session is open and websocket publishing
// of every change.
package kiosk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"restart/internal/adapters/ws"
	"restart/internal/domain/audit"
	domain "restart/internal/domain/kiosk"
)

// Reasons carried by session_reset events.
const (
	ResetIdle   = "idle"
	ResetLogout = "logout"
)

// DefaultDeviceTTL is how long an unused device at rest is kept.
const DefaultDeviceTTL = 2 * time.Hour

// sweepEvery bounds how often device creation triggers eviction.
const sweepEvery = time.Minute

// SessionObserver is told when a terminal arms or disarms its countdown.
// *metrics.Metrics satisfies it.
type SessionObserver interface {
	SessionOpened()
	SessionClosed()
}

// ConnectionCounter reports the open page connections of a device.
// *ws.Hub satisfies it.
type ConnectionCounter interface {
	Connections(deviceID string) int
}

// Options configures a Registry. Zero values fall back to the defaults.
type Options struct {
	IdleSeconds  int
	TickInterval time.Duration
	NewTicker    TickerFactory
	Publisher    ws.Publisher
	Recorder     EventRecorder
	Sessions     SessionObserver
	// DeviceTTL evicts devices unused for this long that have no open
	// session and no connected page.
	DeviceTTL   time.Duration
	Connections ConnectionCounter
	Now         func() time.Time
}

// Registry owns the terminal of every known device.
type Registry struct {
	mu        sync.Mutex
	devices   map[string]*Device
	closed    bool
	lastSweep time.Time

	idleSeconds int
	interval    time.Duration
	newTicker   TickerFactory
	publisher   ws.Publisher
	recorder    EventRecorder
	sessions    SessionObserver
	ttl         time.Duration
	conns       ConnectionCounter
	now         func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.IdleSeconds <= 0 {
		opts.IdleSeconds = domain.DefaultIdleSeconds
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewRealTicker
	}
	if opts.DeviceTTL <= 0 {
		opts.DeviceTTL = DefaultDeviceTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		devices:     make(map[string]*Device),
		idleSeconds: opts.IdleSeconds,
		interval:    opts.TickInterval,
		newTicker:   opts.NewTicker,
		publisher:   opts.Publisher,
		recorder:    opts.Recorder,
		sessions:    opts.Sessions,
		ttl:         opts.DeviceTTL,
		conns:       opts.Connections,
		now:         opts.Now,
	}
}

// Device returns the device with id, creating a fresh terminal on first use.
// The second result reports whether the device was just created.
// PRE: id is non-empty
func (r *Registry) Device(id string) (*Device, bool) {
	r.mu.Lock()
	now := r.now()
	if d, ok := r.devices[id]; ok {
		d.seen = now
		r.mu.Unlock()
		return d, false
	}
	d := &Device{
		id:   id,
		reg:  r,
		term: domain.NewTerminal(r.idleSeconds),
		seen: now,
	}
	r.devices[id] = d
	due := now.Sub(r.lastSweep) >= sweepEvery
	r.mu.Unlock()

	if due {
		r.Sweep()
	}
	return d, true
}

// Lookup returns an existing device without creating one and marks it used.
func (r *Registry) Lookup(id string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if ok {
		d.seen = r.now()
	}
	return d, ok
}

// Known reports whether id belongs to a registered device.
func (r *Registry) Known(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[id]
	return ok
}

// Sweep evicts devices unused for longer than the TTL that are at rest:
// no armed countdown and no connected page. It returns how many were evicted.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	now := r.now()
	r.lastSweep = now
	var stale []*Device
	for _, d := range r.devices {
		if now.Sub(d.seen) > r.ttl {
			stale = append(stale, d)
		}
	}
	r.mu.Unlock()

	// d.mu is taken before r.mu elsewhere, so candidates are checked unlocked
	// and removed only if nobody used them in between.
	evicted := 0
	for _, d := range stale {
		if !d.atRest() {
			continue
		}
		r.mu.Lock()
		if cur, ok := r.devices[d.id]; ok && cur == d && now.Sub(d.seen) > r.ttl {
			delete(r.devices, d.id)
			evicted++
			slog.Info("kiosk_event", "event", "device_evicted", "device_id", d.id, "idle_for", now.Sub(d.seen).Round(time.Second).String())
		}
		r.mu.Unlock()
	}
	return evicted
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// HandleActivity resets the countdown of a device for a page interaction.
// Unknown devices and non-qualifying kinds are ignored.
func (r *Registry) HandleActivity(deviceID, kind string) {
	d, ok := r.Lookup(deviceID)
	if !ok {
		return
	}
	d.Touch(domain.ActivityKind(kind))
}

// Close stops every idle ticker. Terminals keep their state.
func (r *Registry) Close() {
	r.mu.Lock()
	devices := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	r.closed = true
	r.mu.Unlock()

	for _, d := range devices {
		d.mu.Lock()
		d.stopTickerLocked()
		d.mu.Unlock()
	}
}

func (r *Registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Registry) publish(deviceID string, ev ws.Event) {
	if r.publisher != nil {
		r.publisher.PublishToDevice(deviceID, ev)
	}
}

// Device serialises access to one terminal and runs its idle ticker.
//
// INVARIANT: ticker != nil iff the terminal is armed
type Device struct {
	id  string
	reg *Registry

	// seen is guarded by reg.mu.
	seen time.Time

	mu     sync.Mutex
	term   *domain.Terminal
	ticker Ticker
	stop   chan struct{}
}

// ID returns the device id.
func (d *Device) ID() string {
	return d.id
}

// Do runs fn with exclusive access to the terminal, then starts or stops the
// idle ticker to match the new state and publishes the state to the device.
// fn must not block on remote calls.
// INVARIANT: states are published in the order fn calls ran
func (d *Device) Do(fn func(t *domain.Terminal) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := fn(d.term)
	d.reconcileLocked()
	snap := d.term.Snapshot()
	snap.Notifications = nil
	d.reg.publish(d.id, ws.Event{Op: ws.OpState, Data: snap})
	return err
}

// atRest reports whether the device may be evicted.
func (d *Device) atRest() bool {
	d.mu.Lock()
	armed := d.term.Armed()
	d.mu.Unlock()
	if armed {
		return false
	}
	return d.reg.conns == nil || d.reg.conns.Connections(d.id) == 0
}

// Snapshot returns the state for rendering and drains queued notifications.
func (d *Device) Snapshot() domain.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := d.term.Snapshot()
	snap.Notifications = d.term.DrainNotifications()
	return snap
}

// Touch resets the countdown for a qualifying interaction and publishes the
// refreshed countdown. It reports whether the countdown was reset.
func (d *Device) Touch(kind domain.ActivityKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ok := d.term.Touch(kind)
	if ok {
		tick := ws.IdleTickData{Remaining: d.term.IdleRemaining(), Timeout: d.reg.idleSeconds}
		d.reg.publish(d.id, ws.Event{Op: ws.OpIdleTick, Data: tick})
	}
	return ok
}

// Logout ends the open session, if any, and tells the pages.
func (d *Device) Logout(ctx context.Context) {
	var identityID string
	wasOpen := false
	_ = d.Do(func(t *domain.Terminal) error {
		if sel, ok := t.Selected(); ok {
			identityID = sel.ID
			wasOpen = true
		}
		t.Logout()
		return nil
	})
	if !wasOpen {
		return
	}
	d.reg.publish(d.id, ws.Event{Op: ws.OpSessionReset, Data: ws.SessionResetData{Reason: ResetLogout}})
	d.Record(ctx, Event{IdentityID: identityID, Action: audit.ActionLogout})
}

// Record sends a device event to the registry's recorder.
func (d *Device) Record(ctx context.Context, e Event) {
	if d.reg.recorder == nil {
		return
	}
	e.DeviceID = d.id
	d.reg.recorder.Record(ctx, e)
}

// Ticking reports whether an idle ticker is running.
func (d *Device) Ticking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticker != nil
}

// reconcileLocked acquires or releases the ticker so it matches the armed state.
// PRE: d.mu is held
func (d *Device) reconcileLocked() {
	armed := d.term.Armed()
	switch {
	case armed && d.ticker == nil:
		if d.reg.isClosed() {
			return
		}
		d.ticker = d.reg.newTicker(d.reg.interval)
		d.stop = make(chan struct{})
		if d.reg.sessions != nil {
			d.reg.sessions.SessionOpened()
		}
		go d.run(d.ticker, d.stop)
	case !armed && d.ticker != nil:
		d.stopTickerLocked()
	}
}

// PRE: d.mu is held
func (d *Device) stopTickerLocked() {
	if d.ticker == nil {
		return
	}
	d.ticker.Stop()
	close(d.stop)
	d.ticker = nil
	d.stop = nil
	if d.reg.sessions != nil {
		d.reg.sessions.SessionClosed()
	}
}

func (d *Device) run(tk Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-tk.C():
			d.tick(stop)
		}
	}
}

// tick advances the countdown by one step. A tick that raced with the ticker
// being released is dropped.
func (d *Device) tick(stop <-chan struct{}) {
	d.mu.Lock()
	select {
	case <-stop:
		d.mu.Unlock()
		return
	default:
	}
	var identityID string
	if sel, ok := d.term.Selected(); ok {
		identityID = sel.ID
	}
	expired := d.term.Tick()
	if expired {
		d.term.Notify(domain.NotifyError, domain.MsgSessionExpired)
	}
	remaining := d.term.IdleRemaining()
	d.reconcileLocked()
	if !expired {
		d.reg.publish(d.id, ws.Event{Op: ws.OpIdleTick, Data: ws.IdleTickData{Remaining: remaining, Timeout: d.reg.idleSeconds}})
		d.mu.Unlock()
		return
	}
	snap := d.term.Snapshot()
	snap.Notifications = nil
	d.reg.publish(d.id, ws.Event{Op: ws.OpSessionReset, Data: ws.SessionResetData{Reason: ResetIdle}})
	d.reg.publish(d.id, ws.Event{Op: ws.OpState, Data: snap})
	d.mu.Unlock()

	d.Record(context.Background(), Event{IdentityID: identityID, Action: audit.ActionIdleTimeout})
}
