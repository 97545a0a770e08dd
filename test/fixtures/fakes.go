// Package fixtures provides test doubles shared by unit and integration tests.
package fixtures

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// MemoryStore implements domain.ConfigStore and domain.ClassificationStore in memory.
type MemoryStore struct {
	mu         sync.Mutex
	ints       map[string]int64
	floats     map[string]float64
	bools      map[string]bool
	classes    map[string]domain.Classification
	failReads  bool
	failWrites bool
	failGets   int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ints:    make(map[string]int64),
		floats:  make(map[string]float64),
		bools:   make(map[string]bool),
		classes: make(map[string]domain.Classification),
	}
}

// FailReads makes every read return a store error.
func (m *MemoryStore) FailReads(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = fail
}

// FailWrites makes every write return a store error.
func (m *MemoryStore) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// FailClassificationReads makes the next n classification lookups fail.
func (m *MemoryStore) FailClassificationReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failGets = n
}

func (m *MemoryStore) readErr() error {
	if m.failReads {
		return errors.Join(domain.ErrStoreUnavailable, ErrInjected)
	}
	return nil
}

func (m *MemoryStore) writeErr() error {
	if m.failWrites {
		return errors.Join(domain.ErrStoreUnavailable, ErrInjected)
	}
	return nil
}

func (m *MemoryStore) GetInt(_ context.Context, key string, def int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readErr(); err != nil {
		return 0, err
	}
	if v, ok := m.ints[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *MemoryStore) SetInt(_ context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.ints[key] = value
	return nil
}

func (m *MemoryStore) UpdateInt(_ context.Context, key string, def int64, fn func(int64) (int64, bool)) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readErr(); err != nil {
		return 0, false, err
	}
	current, ok := m.ints[key]
	if !ok {
		current = def
	}
	next, apply := fn(current)
	if !apply {
		return current, false, nil
	}
	if err := m.writeErr(); err != nil {
		return current, false, err
	}
	m.ints[key] = next
	return next, true, nil
}

func (m *MemoryStore) GetFloat(_ context.Context, key string, def float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readErr(); err != nil {
		return 0, err
	}
	if v, ok := m.floats[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *MemoryStore) SetFloat(_ context.Context, key string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.floats[key] = value
	return nil
}

func (m *MemoryStore) GetBool(_ context.Context, key string, def bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readErr(); err != nil {
		return false, err
	}
	if v, ok := m.bools[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *MemoryStore) SetBool(_ context.Context, key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.bools[key] = value
	return nil
}

func (m *MemoryStore) Get(_ context.Context, appID string) (*domain.Classification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readErr(); err != nil {
		return nil, err
	}
	if m.failGets > 0 {
		m.failGets--
		return nil, errors.Join(domain.ErrStoreUnavailable, ErrInjected)
	}
	c, ok := m.classes[appID]
	if !ok {
		return nil, domain.ErrClassificationNotFound
	}
	return &c, nil
}

func (m *MemoryStore) Upsert(_ context.Context, c domain.Classification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.classes[c.AppID] = c
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	delete(m.classes, appID)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]domain.Classification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readErr(); err != nil {
		return nil, err
	}
	out := make([]domain.Classification, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out, nil
}

// Classify is a shorthand for seeding a classification.
func (m *MemoryStore) Classify(appID string, category domain.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[appID] = domain.Classification{AppID: appID, AppName: appID, Category: category}
}

var (
	_ domain.ConfigStore         = (*MemoryStore)(nil)
	_ domain.ClassificationStore = (*MemoryStore)(nil)
)

// FakeClock is a manually advanced domain.Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// BlockEvent records one TriggerBlock call.
type BlockEvent struct {
	AppID   string
	AppName string
}

// RecordingAlerts implements domain.AlertSurface and keeps every call.
type RecordingAlerts struct {
	mu        sync.Mutex
	blocks    []BlockEvent
	reminders []int64
	statuses  []string
}

func (r *RecordingAlerts) TriggerBlock(appID, appName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, BlockEvent{AppID: appID, AppName: appName})
}

func (r *RecordingAlerts) ShowReminder(dwellSeconds int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reminders = append(r.reminders, dwellSeconds)
}

func (r *RecordingAlerts) UpdateStatusText(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, message)
}

func (r *RecordingAlerts) Blocks() []BlockEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BlockEvent(nil), r.blocks...)
}

func (r *RecordingAlerts) Reminders() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.reminders...)
}

func (r *RecordingAlerts) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

var _ domain.AlertSurface = (*RecordingAlerts)(nil)

// ScriptedObserver implements domain.ForegroundObserver with settable answers.
type ScriptedObserver struct {
	mu          sync.Mutex
	app         string
	appErr      error
	interactive bool
	displayErr  error
	panicNext   bool
}

// NewScriptedObserver starts with the display on and nothing focused.
func NewScriptedObserver() *ScriptedObserver {
	return &ScriptedObserver{interactive: true}
}

func (o *ScriptedObserver) SetApp(app string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.app = app
}

func (o *ScriptedObserver) SetAppErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appErr = err
}

func (o *ScriptedObserver) SetInteractive(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.interactive = on
}

func (o *ScriptedObserver) SetDisplayErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.displayErr = err
}

// PanicNext makes the next CurrentForegroundApp call panic.
func (o *ScriptedObserver) PanicNext() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.panicNext = true
}

func (o *ScriptedObserver) CurrentForegroundApp(_ context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.panicNext {
		o.panicNext = false
		panic("scripted observer panic")
	}
	return o.app, o.appErr
}

func (o *ScriptedObserver) IsDisplayInteractive(_ context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.interactive, o.displayErr
}

var _ domain.ForegroundObserver = (*ScriptedObserver)(nil)
