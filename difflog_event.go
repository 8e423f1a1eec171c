package difflog

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/dianlight/difflog/render"
)

// LogEvent represents a log event passed to callbacks
type LogEvent struct {
	Record  slog.Record
	Context context.Context
	Target  string
}

// LogCallback is the function signature for log event callbacks
type LogCallback func(event LogEvent)

// AnomalyCallback receives timestamps that went backwards or changed zone.
type AnomalyCallback func(anomaly render.Anomaly)

// EventHandler forwards records to the registered callbacks.
type EventHandler struct {
	target string
	groups int
}

func NewEventHandler() slog.Handler {
	return &EventHandler{}
}

func (h *EventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if t, ok := targetAttr(attrs, h.groups); ok {
		return &EventHandler{target: t, groups: h.groups}
	}
	return h
}

func (h *EventHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &EventHandler{target: h.target, groups: h.groups + 1}
}

func (h *EventHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *EventHandler) Handle(ctx context.Context, record slog.Record) error {
	ep := processor.Load()
	if ep == nil || !ep.hasCallbacks(record.Level) {
		return nil
	}

	target := h.target
	if target == "" {
		target = recordTarget(record, h.groups)
	}
	ep.enqueue(func() {
		ep.executeCallbacks(LogEvent{Record: record, Context: ctx, Target: target})
	})
	return nil
}

// publishAnomaly queues anomaly callbacks. It runs on the rendering
// goroutine, so it never blocks.
func publishAnomaly(anomaly render.Anomaly) {
	ep := processor.Load()
	if ep == nil {
		return
	}
	ep.callbacksMu.RLock()
	n := len(ep.anomalyCallbacks)
	ep.callbacksMu.RUnlock()
	if n == 0 {
		return
	}
	ep.enqueue(func() {
		ep.executeAnomalyCallbacks(anomaly)
	})
}

// callbackEntry holds a callback with its metadata
type callbackEntry struct {
	callback LogCallback
	id       string
}

type anomalyEntry struct {
	callback AnomalyCallback
	id       string
}

// eventProcessor runs callbacks off the logging path.
type eventProcessor struct {
	jobs             chan func()
	callbacks        map[slog.Level][]callbackEntry
	anomalyCallbacks []anomalyEntry
	callbacksMu      sync.RWMutex
	wg               sync.WaitGroup
	shutdown         chan struct{}
	once             sync.Once
}

var (
	processor   atomic.Pointer[eventProcessor]
	processorMu sync.Mutex // serializes processor restarts
	callbackSeq atomic.Uint64
)

func newEventProcessor() *eventProcessor {
	ep := &eventProcessor{
		jobs:      make(chan func(), 1000),
		callbacks: make(map[slog.Level][]callbackEntry),
		shutdown:  make(chan struct{}),
	}
	ep.wg.Add(1)
	go ep.processEvents()
	return ep
}

// initializeProcessor starts the event processor once.
func initializeProcessor() {
	processorMu.Lock()
	defer processorMu.Unlock()

	if processor.Load() == nil {
		processor.Store(newEventProcessor())
	}
}

func (ep *eventProcessor) hasCallbacks(level slog.Level) bool {
	ep.callbacksMu.RLock()
	defer ep.callbacksMu.RUnlock()
	return len(ep.callbacks[level]) > 0
}

// enqueue never blocks the logging goroutine; a full queue drops the job.
func (ep *eventProcessor) enqueue(job func()) {
	select {
	case <-ep.shutdown:
		return
	default:
	}
	select {
	case ep.jobs <- job:
	default:
		log.Println("difflog: callback event queue full, dropping event")
	}
}

func (ep *eventProcessor) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case job := <-ep.jobs:
			job()
		case <-ep.shutdown:
			// Drain what was queued before shutdown.
			for {
				select {
				case job := <-ep.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

func (ep *eventProcessor) executeCallbacks(event LogEvent) {
	ep.callbacksMu.RLock()
	callbacks := ep.callbacks[event.Record.Level]
	ep.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry := entry
		go safeExecute(func() { entry.callback(event) })
	}
}

func (ep *eventProcessor) executeAnomalyCallbacks(anomaly render.Anomaly) {
	ep.callbacksMu.RLock()
	callbacks := ep.anomalyCallbacks
	ep.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry := entry
		go safeExecute(func() { entry.callback(anomaly) })
	}
}

// safeExecute runs fn, recovering and reporting a panic.
func safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("difflog callback panic recovered: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}

func nextCallbackID(kind string) string {
	return fmt.Sprintf("%s_%d", kind, callbackSeq.Add(1))
}

// RegisterCallback registers a callback for a specific log level
// Returns a callback ID that can be used to unregister the callback
func RegisterCallback(level slog.Level, callback LogCallback) string {
	initializeProcessor()
	ep := processor.Load()

	ep.callbacksMu.Lock()
	defer ep.callbacksMu.Unlock()

	id := nextCallbackID(fmt.Sprintf("callback_%d", level))
	// Copy on write: executeCallbacks iterates without the lock.
	entries := append([]callbackEntry(nil), ep.callbacks[level]...)
	ep.callbacks[level] = append(entries, callbackEntry{callback: callback, id: id})
	return id
}

// UnregisterCallback removes a callback by its ID
func UnregisterCallback(level slog.Level, callbackID string) bool {
	ep := processor.Load()
	if ep == nil {
		return false
	}

	ep.callbacksMu.Lock()
	defer ep.callbacksMu.Unlock()

	callbacks := ep.callbacks[level]
	for i, entry := range callbacks {
		if entry.id == callbackID {
			entries := append([]callbackEntry(nil), callbacks[:i]...)
			ep.callbacks[level] = append(entries, callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// OnAnomaly registers a callback for clock regressions and zone changes seen
// by loggers writing with the diff layout. Returns an ID for
// UnregisterAnomalyCallback.
func OnAnomaly(callback AnomalyCallback) string {
	initializeProcessor()
	ep := processor.Load()

	ep.callbacksMu.Lock()
	defer ep.callbacksMu.Unlock()

	id := nextCallbackID("anomaly")
	entries := append([]anomalyEntry(nil), ep.anomalyCallbacks...)
	ep.anomalyCallbacks = append(entries, anomalyEntry{callback: callback, id: id})
	return id
}

// UnregisterAnomalyCallback removes an anomaly callback by its ID.
func UnregisterAnomalyCallback(callbackID string) bool {
	ep := processor.Load()
	if ep == nil {
		return false
	}

	ep.callbacksMu.Lock()
	defer ep.callbacksMu.Unlock()

	for i, entry := range ep.anomalyCallbacks {
		if entry.id == callbackID {
			entries := append([]anomalyEntry(nil), ep.anomalyCallbacks[:i]...)
			ep.anomalyCallbacks = append(entries, ep.anomalyCallbacks[i+1:]...)
			return true
		}
	}
	return false
}

// ClearCallbacks removes all callbacks for a specific level
func ClearCallbacks(level slog.Level) {
	ep := processor.Load()
	if ep == nil {
		return
	}

	ep.callbacksMu.Lock()
	defer ep.callbacksMu.Unlock()
	delete(ep.callbacks, level)
}

// ClearAllCallbacks removes all registered callbacks
func ClearAllCallbacks() {
	ep := processor.Load()
	if ep == nil {
		return
	}

	ep.callbacksMu.Lock()
	defer ep.callbacksMu.Unlock()
	ep.callbacks = make(map[slog.Level][]callbackEntry)
	ep.anomalyCallbacks = nil
}

// GetCallbackCount returns the number of callbacks registered for a level
func GetCallbackCount(level slog.Level) int {
	ep := processor.Load()
	if ep == nil {
		return 0
	}

	ep.callbacksMu.RLock()
	defer ep.callbacksMu.RUnlock()
	return len(ep.callbacks[level])
}

// Shutdown runs the queued callbacks and stops the event processor.
func Shutdown() {
	ep := processor.Load()
	if ep == nil {
		return
	}
	ep.stop()
}

func (ep *eventProcessor) stop() {
	ep.once.Do(func() {
		close(ep.shutdown)
		ep.wg.Wait()
	})
}

// RestartProcessor shuts down the current processor and creates a new one
// This is mainly used for testing to ensure clean state between tests
func RestartProcessor() {
	processorMu.Lock()
	defer processorMu.Unlock()

	if ep := processor.Load(); ep != nil {
		ep.stop()
	}
	processor.Store(newEventProcessor())
}
