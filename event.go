package livefrag

import (
	"sync"

	"go.uber.org/zap"
)

// EventType identifies a lifecycle event emitted by the engine.
type EventType string

const (
	// EventLoaded fires after a load completes and its content (if
	// changed) is installed. Event carries URL, Response and Changed.
	EventLoaded EventType = "loaded"

	// EventLoadError fires when the retry ceiling is exceeded and the
	// inline error state is rendered. Event carries URL and Err.
	EventLoadError EventType = "error"

	// EventBound fires when a container is bound and its controller
	// created.
	EventBound EventType = "bound"

	// EventDisposed fires when a controller is disposed.
	EventDisposed EventType = "disposed"
)

// Event is the payload delivered to lifecycle handlers.
type Event struct {
	Type       EventType
	Controller *Controller
	URL        string
	Response   *Response
	Changed    bool
	Err        error
}

// Handler receives lifecycle events. Handlers run synchronously on the
// emitting goroutine.
type Handler func(Event)

// Emitter is a typed publish/subscribe mechanism with per-handler fault
// isolation: a panicking handler is reported and skipped, and never
// prevents other handlers from running or breaks the emitting call.
type Emitter struct {
	mu       sync.Mutex
	nextID   int
	handlers map[EventType]map[int]Handler
	log      *zap.Logger
}

// NewEmitter creates an emitter reporting handler panics to log.
func NewEmitter(log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{
		handlers: make(map[EventType]map[int]Handler),
		log:      log,
	}
}

// On subscribes fn to events of type t and returns an unsubscribe func.
// Unsubscribing twice is a no-op.
func (e *Emitter) On(t EventType, fn Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers[t] == nil {
		e.handlers[t] = make(map[int]Handler)
	}
	id := e.nextID
	e.nextID++
	e.handlers[t][id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[t], id)
	}
}

// Emit delivers ev to every subscriber of ev.Type. Delivery order across
// handlers is unspecified. Must not be called with engine locks held -
// handlers are free to call back into controllers.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	hs := make([]Handler, 0, len(e.handlers[ev.Type]))
	for _, h := range e.handlers[ev.Type] {
		hs = append(hs, h)
	}
	e.mu.Unlock()

	for _, h := range hs {
		e.invoke(h, ev)
	}
}

func (e *Emitter) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("livefrag: event handler panicked",
				zap.String("event", string(ev.Type)),
				zap.Any("panic", r))
		}
	}()
	h(ev)
}
