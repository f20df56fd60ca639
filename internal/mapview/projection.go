// Package mapview projects the mappable case records onto a map surface and
// keeps its marker layer in step with the record list across focus cycles.
package mapview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bnn-rehab/internal/models"

	"go.uber.org/zap"
)

// State of the map lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReadyNoMap
	StateReadyBound
	StateInvalid
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReadyNoMap:
		return "ready_no_map"
	case StateReadyBound:
		return "ready_bound"
	case StateInvalid:
		return "invalid"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	DefaultFocusDelay  = 200 * time.Millisecond
	DefaultSettleDelay = 100 * time.Millisecond
)

// Source is the record list being projected.
type Source interface {
	Records() []models.CaseRecord
	OnChange(fn func([]models.CaseRecord)) func()
}

// ReconcileHook receives the markers placed by each reconciliation.
type ReconcileHook func(markers []Marker)

// Options configures a Projection.
type Options struct {
	FocusDelay  time.Duration
	SettleDelay time.Duration
	View        View
	Scheduler   Scheduler
	Hooks       []ReconcileHook
}

// Projection binds one map to a record source.
type Projection struct {
	source  Source
	surface Surface
	opts    Options
	logger  *zap.Logger

	mu          sync.Mutex
	state       State
	loaded      bool
	m           Map
	focused     bool
	gen         uint64
	focusTimer  Timer
	settleTimer Timer
	markers     []Marker
	seq         uint64
	closed      bool

	// hookMu orders hook delivery; delivered is the last seq handed to hooks.
	hookMu    sync.Mutex
	delivered uint64

	memoSrc []models.CaseRecord
	memoOut []models.CaseRecord

	unsub func()
}

// NewProjection creates a projection and starts following source.
func NewProjection(source Source, surface Surface, opts Options, logger *zap.Logger) *Projection {
	if opts.FocusDelay <= 0 {
		opts.FocusDelay = DefaultFocusDelay
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.View == (View{}) {
		opts.View = DefaultView
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clockScheduler{}
	}
	p := &Projection{
		source:  source,
		surface: surface,
		opts:    opts,
		logger:  logger,
	}
	p.unsub = source.OnChange(p.onRecords)
	return p
}

// State returns the lifecycle state.
func (p *Projection) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// MappableRecords returns the records with both coordinates present and finite.
func (p *Projection) MappableRecords() []models.CaseRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mappableLocked(p.source.Records())
}

// Markers returns the markers placed by the last reconciliation.
func (p *Projection) Markers() []Marker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.markers
}

// Focus schedules map (re)initialisation after the focus delay.
func (p *Projection) Focus() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.focused = true
	p.stopTimersLocked()
	p.gen++
	gen := p.gen
	p.focusTimer = p.opts.Scheduler.AfterFunc(p.opts.FocusDelay, func() { p.initialize(gen) })
}

// Unfocus cancels pending work. The map itself is kept.
func (p *Projection) Unfocus() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.focused = false
	p.gen++
	p.stopTimersLocked()
}

// Close stops timers and detaches from the source.
func (p *Projection) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.focused = false
	p.gen++
	p.stopTimersLocked()
	p.state = StateDisposed
	p.m = nil
	unsub := p.unsub
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (p *Projection) stopTimersLocked() {
	if p.focusTimer != nil {
		p.focusTimer.Stop()
		p.focusTimer = nil
	}
	if p.settleTimer != nil {
		p.settleTimer.Stop()
		p.settleTimer = nil
	}
}

func (p *Projection) current(gen uint64) bool {
	return !p.closed && p.focused && p.gen == gen
}

func (p *Projection) initialize(gen uint64) {
	p.mu.Lock()
	if !p.current(gen) {
		p.mu.Unlock()
		return
	}
	p.focusTimer = nil

	if !p.loaded {
		p.state = StateLoading
		if err := p.surface.Load(context.Background()); err != nil {
			p.state = StateUninitialized
			p.mu.Unlock()
			p.logger.Error("Failed to load map library", zap.Error(err))
			return
		}
		p.loaded = true
		p.state = StateReadyNoMap
	}

	if p.boundLocked() {
		p.m.InvalidateSize()
		p.state = StateReadyBound
		markers, seq := p.reconcileLocked()
		p.mu.Unlock()
		p.runHooks(markers, seq)
		return
	}

	if p.m != nil {
		p.state = StateInvalid
		p.logger.Info("Map container detached, recreating map")
		p.m = nil
	}

	container := p.surface.Container()
	if container == nil || !container.Attached() {
		p.state = StateReadyNoMap
		p.mu.Unlock()
		p.logger.Warn("No attached map container")
		return
	}

	m, err := p.surface.NewMap(container, p.opts.View)
	if err != nil {
		p.state = StateReadyNoMap
		p.mu.Unlock()
		p.logger.Error("Failed to create map", zap.Error(err))
		return
	}
	p.m = m
	p.state = StateReadyBound
	p.settleTimer = p.opts.Scheduler.AfterFunc(p.opts.SettleDelay, func() { p.settle(gen) })
	p.mu.Unlock()

	p.logger.Debug("Map created",
		zap.Float64("lat", p.opts.View.Lat),
		zap.Float64("lng", p.opts.View.Lng),
		zap.Int("zoom", p.opts.View.Zoom),
	)
}

func (p *Projection) settle(gen uint64) {
	p.mu.Lock()
	if !p.current(gen) || p.m == nil {
		p.mu.Unlock()
		return
	}
	p.settleTimer = nil
	p.m.InvalidateSize()
	markers, seq := p.reconcileLocked()
	p.mu.Unlock()
	p.runHooks(markers, seq)
}

func (p *Projection) onRecords(records []models.CaseRecord) {
	p.mu.Lock()
	if p.closed || p.m == nil {
		p.mu.Unlock()
		return
	}
	if !p.boundLocked() {
		// picked up again on the next focus
		p.state = StateInvalid
		p.mu.Unlock()
		return
	}
	markers, seq := p.reconcileLocked()
	p.mu.Unlock()
	p.runHooks(markers, seq)
}

func (p *Projection) boundLocked() bool {
	if p.m == nil {
		return false
	}
	c := p.m.Container()
	return c != nil && c.Attached()
}

// mappableLocked is memoized on the identity of the source slice.
func (p *Projection) mappableLocked(records []models.CaseRecord) []models.CaseRecord {
	if p.memoOut != nil && sameSlice(p.memoSrc, records) {
		return p.memoOut
	}
	out := make([]models.CaseRecord, 0, len(records))
	for _, r := range records {
		if r.Mappable() {
			out = append(out, r)
		}
	}
	p.memoSrc = records
	p.memoOut = out
	return out
}

func sameSlice(a, b []models.CaseRecord) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}

// reconcileLocked replaces every marker; a record that fails is skipped.
// The returned seq orders this marker set against other reconciliations.
func (p *Projection) reconcileLocked() ([]Marker, uint64) {
	layer := p.m.Markers()
	layer.Clear()

	records := p.mappableLocked(p.source.Records())
	placed := make([]Marker, 0, len(records))
	for _, r := range records {
		mk, err := place(layer, r)
		if err != nil {
			p.logger.Warn("Skipping marker",
				zap.String("record_id", r.ID),
				zap.Error(err),
			)
			continue
		}
		placed = append(placed, mk)
	}
	p.markers = placed
	p.seq++

	p.logger.Debug("Markers reconciled", zap.Int("marker_count", len(placed)))
	return placed, p.seq
}

func place(layer MarkerLayer, r models.CaseRecord) (mk Marker, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("placing marker panicked: %v", rec)
		}
	}()
	mk, err = NewMarker(r)
	if err != nil {
		return Marker{}, err
	}
	if err := layer.Add(mk); err != nil {
		return Marker{}, err
	}
	return mk, nil
}

// runHooks delivers in reconcile order; a set older than one already
// delivered is dropped.
func (p *Projection) runHooks(markers []Marker, seq uint64) {
	p.hookMu.Lock()
	defer p.hookMu.Unlock()
	if seq <= p.delivered {
		p.logger.Debug("Dropping superseded marker set", zap.Uint64("seq", seq))
		return
	}
	p.delivered = seq
	for _, h := range p.opts.Hooks {
		h(markers)
	}
}
