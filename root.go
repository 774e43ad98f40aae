package livefrag

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pthm/livefrag/lib/ratelimit"
)

// Config tunes the engine. The zero value is usable; withDefaults fills
// in anything unset.
type Config struct {
	// Logger receives all "reported, not fatal" diagnostics. Defaults
	// to a no-op logger.
	Logger *zap.Logger

	// Client performs fetches. When unset, an internal client is used
	// that surfaces HTTP redirects to the engine instead of following
	// them (redirects mean "navigate the whole page"). A custom client
	// should set CheckRedirect to http.ErrUseLastResponse for the same
	// behavior.
	Client *http.Client

	// Timeout aborts a fetch that has not resolved in time.
	Timeout time.Duration

	// MaxRetries is the retry ceiling for consecutive failures. Zero
	// means the default; negative disables automatic retries entirely.
	MaxRetries int

	// RetryDelay is the linear backoff base: retry n is scheduled after
	// RetryDelay * n.
	RetryDelay time.Duration

	// MaxRequests and RateWindow configure the sliding-window limiter:
	// at most MaxRequests fetches per URL within any RateWindow.
	// MaxRequests <= 0 disables limiting.
	MaxRequests int
	RateWindow  time.Duration

	// RateSweepInterval is how often stale limiter keys are swept.
	RateSweepInterval time.Duration

	// SearchDebounce is the quiet period for debounced input binders.
	SearchDebounce time.Duration

	// CSRFToken is sent with every fetch as an anti-forgery token.
	CSRFToken string

	// AlwaysReplaceHistory makes every history write replace the current
	// entry instead of pushing, for hosts that do not want back-button
	// stops per parameter change.
	AlwaysReplaceHistory bool
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.RateWindow <= 0 {
		c.RateWindow = 10 * time.Second
	}
	if c.RateSweepInterval <= 0 {
		c.RateSweepInterval = time.Minute
	}
	if c.SearchDebounce <= 0 {
		c.SearchDebounce = 300 * time.Millisecond
	}
	return c
}

// Root is the shared coordinator: it owns the configuration, the
// binder/feature registries, the container-to-controller map, the
// lifecycle event emitter and the rate limiter. One Root per document.
//
// Initialization order matters and is explicit: construct the Root,
// register binders and features (feature Init hooks run at registration),
// then run the first Bind sweep. Close tears everything down.
type Root struct {
	mu sync.Mutex

	cfg     Config
	log     *zap.Logger
	doc     Document
	history History
	client  *http.Client

	binders     map[string]Binder
	binderOrder []string
	features    map[string]Feature

	controllers map[Element]*Controller
	byID        map[string]*Controller

	events  *Emitter
	limiter *ratelimit.Limiter

	// toast is installed by the toast feature; nil means no-op.
	toast func(level, message string)

	online    bool
	sweepStop chan struct{}
	closed    bool
}

// New creates a Root coordinating doc. history may be nil for hosts
// without history integration (history writes become no-ops).
func New(doc Document, history History, cfg Config) *Root {
	cfg = cfg.withDefaults()
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	r := &Root{
		cfg:         cfg,
		log:         cfg.Logger,
		doc:         doc,
		history:     history,
		client:      client,
		binders:     make(map[string]Binder),
		features:    make(map[string]Feature),
		controllers: make(map[Element]*Controller),
		byID:        make(map[string]*Controller),
		events:      NewEmitter(cfg.Logger),
		limiter:     ratelimit.New(cfg.MaxRequests, cfg.RateWindow),
		online:      true,
		sweepStop:   make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Events returns the lifecycle event emitter.
func (r *Root) Events() *Emitter {
	return r.events
}

// Document returns the document this Root coordinates.
func (r *Root) Document() Document {
	return r.doc
}

// Config returns the effective configuration (defaults applied).
func (r *Root) Config() Config {
	return r.cfg
}

// GetController returns the controller bound to the first element
// matching selector, or nil. This is the primitive higher-level action
// processors build on.
func (r *Root) GetController(selector string) *Controller {
	el := r.doc.QueryOne(selector)
	if el == nil {
		return nil
	}
	return r.controllerOf(el)
}

// ControllerFor resolves the controller an arbitrary element belongs to:
// an explicit data-live-target selector wins, otherwise the nearest
// ancestor-or-self container. Returns nil when the element is outside any
// live region.
func (r *Root) ControllerFor(el Element) *Controller {
	if target, ok := el.Attr(AttrTarget); ok && target != "" {
		return r.GetController(target)
	}
	container := el.Closest("[" + AttrContainer + "]")
	if container == nil {
		return nil
	}
	return r.controllerOf(container)
}

func (r *Root) controllerOf(el Element) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controllers[el]
}

// Toast shows a toast notification if the toast feature is registered;
// otherwise it is a no-op.
func (r *Root) Toast(level, message string) {
	r.mu.Lock()
	show := r.toast
	r.mu.Unlock()
	if show != nil {
		show(level, message)
	}
}

// SetToastFunc installs the capability behind Toast. Called by the toast
// feature's Init hook; hosts can substitute their own sink.
func (r *Root) SetToastFunc(fn func(level, message string)) {
	r.mu.Lock()
	r.toast = fn
	r.mu.Unlock()
}

// SetOnline reports a connectivity transition. Going online resets retry
// counters and refreshes every live controller whose last attempt failed,
// in the manner of a browser's offline/online events. Going offline is
// recorded but triggers nothing.
func (r *Root) SetOnline(online bool) {
	r.mu.Lock()
	was := r.online
	r.online = online
	var live []*Controller
	if online && !was {
		live = make([]*Controller, 0, len(r.controllers))
		for _, c := range r.controllers {
			live = append(live, c)
		}
	}
	r.mu.Unlock()

	// The failed flag belongs to each controller's own lock; it is
	// queried outside r.mu so in-flight fetch completions never race
	// with the sweep.
	for _, c := range live {
		if c.lastAttemptFailed() {
			c.Retry()
		}
	}
}

// Online reports the last connectivity state set via SetOnline.
func (r *Root) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// Close disposes every controller, clears bound markers and stops the
// limiter sweep. The Root must not be used afterwards.
func (r *Root) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.sweepStop)
	r.mu.Unlock()

	r.Cleanup(nil)
}

func (r *Root) sweepLoop() {
	ticker := time.NewTicker(r.cfg.RateSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.limiter.Cleanup()
		case <-r.sweepStop:
			return
		}
	}
}

// register/unregister are called by controllers under r.mu's protection
// boundaries; they take the lock themselves.
func (r *Root) registerController(el Element, c *Controller) {
	r.mu.Lock()
	r.controllers[el] = c
	r.byID[c.ID()] = c
	r.mu.Unlock()
}

func (r *Root) unregisterController(el Element, c *Controller) {
	r.mu.Lock()
	delete(r.controllers, el)
	delete(r.byID, c.ID())
	r.mu.Unlock()
}
