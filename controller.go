package livefrag

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/pthm/livefrag/lib/urlstate"
)

// loadMode selects how fetched content lands in the container.
type loadMode int

const (
	// loadReplace swaps the container's innerHTML wholesale (subject to
	// the content-change heuristic).
	loadReplace loadMode = iota

	// loadAppend concatenates at the end of the container; change
	// suppression and history never apply.
	loadAppend
)

// pageParam is the reserved pagination parameter. Refresh always removes
// it before loading so a changed filter returns to page one; only
// LoadMore and explicit callers set it.
const pageParam = "page"

// Controller is the per-container synchronization state machine. It owns
// the container's URL/parameter state, the fetch lifecycle (abort on
// supersede, timeout, linear-backoff retry, stale-response suppression,
// append-vs-replace installation, history integration) and the
// preservation of transient UI state across swaps.
//
// One controller exists per bound container. A controller owns its own
// timers, abort handle and parameter state exclusively; it never touches
// another controller's state. At most one fetch is in flight at a time -
// starting a new one cancels the prior one, and a superseded response is
// discarded no matter when it arrives. The correctness mechanism is the
// request generation counter, not the cancellation: even a response that
// slips through after a newer load began carries a stale generation and
// is dropped before touching the DOM.
type Controller struct {
	mu sync.Mutex

	root *Root
	el   Element
	id   string

	url urlstate.URL

	generation  uint64
	retryCount  int
	cancel      context.CancelFunc
	retryTimer  *time.Timer
	intervalDur time.Duration
	intervalT   *time.Timer

	historyInit bool
	disposed    bool
	loadedOnce  bool
	lastFailed  bool
	hasMore     bool
}

// newController creates and registers a controller for el. Called by the
// container binder during a bind sweep.
func newController(root *Root, el Element) *Controller {
	c := &Controller{
		root: root,
		el:   el,
		id:   NewID(),
		url:  urlstate.URL{Params: urlstate.NewParams()},
	}
	root.registerController(el, c)
	return c
}

// ID returns the controller's unique identity. It tags history entries so
// back/forward navigation can be routed to this controller.
func (c *Controller) ID() string {
	return c.id
}

// Element returns the bound container element.
func (c *Controller) Element() Element {
	return c.el
}

// SetURL re-targets the controller at url, parsing it into path, ordered
// parameters and fragment. Cross-origin and malformed URLs are rejected
// as a reported no-op - the controller never fetches a third-party URL.
// SetURL does not trigger a fetch.
func (c *Controller) SetURL(url string) error {
	parsed, err := urlstate.Parse(url, c.root.doc.Origin())
	if err != nil {
		c.root.log.Warn("livefrag: setUrl rejected",
			zap.String("url", url), zap.Error(err))
		if errors.Is(err, urlstate.ErrCrossOrigin) {
			return ErrCrossOrigin
		}
		return ErrMalformedURL
	}
	c.mu.Lock()
	c.url = parsed
	c.mu.Unlock()
	return nil
}

// UpdateParam sets or deletes a query parameter. An empty value deletes
// the key. No fetch is triggered - callers batch updates and then call
// Refresh. Binders that change a filtering, sorting or searching
// parameter must call ResetPage before Refresh so new queries land on
// page one; that reset is deliberately not an automatic side effect here.
func (c *Controller) UpdateParam(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == "" {
		c.url.Params.Del(key)
		return
	}
	c.url.Params.Set(key, value)
}

// Param returns the current value of a query parameter.
func (c *Controller) Param(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url.Params.Get(key)
}

// Path returns the controller's URL path.
func (c *Controller) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url.Path
}

// URL returns the full relative URL the next load would fetch.
func (c *Controller) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url.String()
}

// ResetPage deletes the page parameter.
func (c *Controller) ResetPage() {
	c.mu.Lock()
	c.url.Params.Del(pageParam)
	c.mu.Unlock()
}

// Refresh resets pagination and performs a non-append load with a
// history push requested. It never returns an error: failures resolve
// through the retry pipeline and surface only as events or the rendered
// error state.
func (c *Controller) Refresh() {
	c.ResetPage()
	c.load(loadReplace, true)
}

// Reload performs a non-append load of the current URL without touching
// pagination or history. Interval refresh and manual retry use it.
func (c *Controller) Reload() {
	c.load(loadReplace, false)
}

// LoadMore increments the page parameter (from a default base of 1) and
// performs an append load. Append loads never suppress on unchanged
// content and never write history.
func (c *Controller) LoadMore() {
	c.mu.Lock()
	page := 1
	if v, ok := c.url.Params.Get(pageParam); ok {
		if n, err := strconv.Atoi(v); err == nil {
			page = n
		}
	}
	c.url.Params.Set(pageParam, strconv.Itoa(page+1))
	c.mu.Unlock()
	c.load(loadAppend, false)
}

// Navigate optionally re-targets the controller at url (empty keeps the
// current target), then performs a non-append load with a history push
// requested. Pagination and nav links use it, so the page parameter is
// left exactly as the URL specifies.
func (c *Controller) Navigate(url string) {
	if url != "" {
		if err := c.SetURL(url); err != nil {
			return
		}
	}
	c.load(loadReplace, true)
}

// Retry resets the failure counter and reloads. The retry affordance in
// the rendered error state and the online-transition sweep both land here.
func (c *Controller) Retry() {
	c.mu.Lock()
	c.retryCount = 0
	c.mu.Unlock()
	c.load(loadReplace, false)
}

// HasMore reports the has_more flag from the most recent envelope.
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// lastAttemptFailed reports whether the most recent load attempt failed.
// The online-transition sweep uses it to pick controllers worth retrying.
func (c *Controller) lastAttemptFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFailed
}

// Disposed reports whether the controller has been disposed.
func (c *Controller) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Dispose aborts any in-flight request, stops the retry and interval
// timers and removes the controller from the coordinator's registries.
// Idempotent; a disposed controller schedules no further fetches.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.intervalT != nil {
		c.intervalT.Stop()
		c.intervalT = nil
	}
	c.mu.Unlock()

	c.root.unregisterController(c.el, c)
	c.root.events.Emit(Event{Type: EventDisposed, Controller: c})
}

// setRefreshInterval arms a recurring reload every d. d <= 0 disarms.
func (c *Controller) setRefreshInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intervalDur = d
	if c.intervalT != nil {
		c.intervalT.Stop()
		c.intervalT = nil
	}
	if d <= 0 || c.disposed {
		return
	}
	c.intervalT = time.AfterFunc(d, c.intervalTick)
}

func (c *Controller) intervalTick() {
	c.mu.Lock()
	if c.disposed || c.intervalDur <= 0 {
		c.mu.Unlock()
		return
	}
	c.intervalT = time.AfterFunc(c.intervalDur, c.intervalTick)
	c.mu.Unlock()
	c.load(loadReplace, false)
}

// load runs the front half of the load algorithm synchronously (URL
// build, rate limiting, generation bump, skeleton, supersession of the
// previous fetch, snapshot) and hands off to a goroutine for the network
// suspension point. It never blocks on I/O and never returns an error.
func (c *Controller) load(mode loadMode, pushHistory bool) {
	c.mu.Lock()
	if c.disposed || c.url.Path == "" {
		c.mu.Unlock()
		return
	}

	rel := c.url.String()
	abs := c.root.doc.Origin() + rel

	if !c.root.limiter.CanRequest(abs) {
		// Soft backpressure: dropped, not an error.
		c.mu.Unlock()
		c.root.log.Debug("livefrag: load rate-limited", zap.String("url", abs))
		return
	}

	c.generation++
	myGen := c.generation

	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}

	// Skeleton only for a freshly bound, content-free container; existing
	// content is never overwritten with a placeholder.
	if !c.loadedOnce && strings.TrimSpace(c.el.InnerHTML()) == "" {
		c.el.SetInnerHTML(renderToString(Skeleton()))
	}

	// Abort-on-supersede: the old request is simply discarded.
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.root.cfg.Timeout)
	c.cancel = cancel

	var snap *Snapshot
	if mode == loadReplace {
		s := SaveAll(c.el, c.root.doc)
		snap = &s
	}
	c.mu.Unlock()

	go c.fetch(ctx, cancel, abs, rel, myGen, mode, pushHistory, snap)
}

func (c *Controller) fetch(ctx context.Context, cancel context.CancelFunc, abs, rel string, gen uint64, mode loadMode, pushHistory bool, snap *Snapshot) {
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, abs, nil)
	if err != nil {
		c.finishFailure(gen, mode, pushHistory, rel, err)
		return
	}
	decorateRequest(req, c.root.cfg.CSRFToken)

	resp, err := c.root.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Superseded or disposed: not an error.
			return
		}
		c.finishFailure(gen, mode, pushHistory, rel, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.finishFailure(gen, mode, pushHistory, rel, err)
		return
	}

	if resp.StatusCode >= 400 {
		c.finishFailure(gen, mode, pushHistory, rel,
			errors.New("livefrag: server returned "+resp.Status))
		return
	}

	parsed, err := parseHTTPResponse(resp, body)
	if err != nil {
		c.finishFailure(gen, mode, pushHistory, rel, err)
		return
	}

	c.finishSuccess(gen, mode, pushHistory, rel, parsed, snap)
}

// finishFailure runs the retry policy. Below the ceiling the retry is
// scheduled silently with linear backoff; beyond it the inline error
// state is rendered and an error event emitted, and no further automatic
// retry happens until a manual trigger or a connectivity transition.
func (c *Controller) finishFailure(gen uint64, mode loadMode, pushHistory bool, rel string, cause error) {
	c.mu.Lock()
	if c.disposed || gen != c.generation {
		// A newer request superseded this one; its failure is history.
		c.mu.Unlock()
		return
	}
	c.cancel = nil
	c.retryCount++
	c.lastFailed = true

	if c.retryCount <= c.root.cfg.MaxRetries {
		delay := c.root.cfg.RetryDelay * time.Duration(c.retryCount)
		c.retryTimer = time.AfterFunc(delay, func() {
			c.load(mode, pushHistory)
		})
		c.mu.Unlock()
		c.root.log.Debug("livefrag: load failed, retry scheduled",
			zap.String("url", rel),
			zap.Int("attempt", c.retryCount),
			zap.Duration("delay", delay),
			zap.Error(cause))
		return
	}

	c.el.SetInnerHTML(renderToString(ErrorState("Content failed to load.")))
	c.mu.Unlock()

	c.root.Bind(c.el) // activate the retry affordance
	c.root.log.Warn("livefrag: load failed, retries exhausted",
		zap.String("url", rel), zap.Error(cause))
	c.root.events.Emit(Event{Type: EventLoadError, Controller: c, URL: rel, Err: cause})
}

// finishSuccess installs content, runs the bind sweep over what was
// inserted, restores the UI snapshot and writes history. Responses whose
// generation is stale are discarded wholesale - this is what keeps
// observable effects pinned to the most recently initiated request.
func (c *Controller) finishSuccess(gen uint64, mode loadMode, pushHistory bool, rel string, resp *Response, snap *Snapshot) {
	c.mu.Lock()
	if c.disposed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.cancel = nil

	if resp.Kind == ResponseRedirect {
		c.mu.Unlock()
		c.root.doc.Navigate(resp.Location)
		return
	}

	changed := true
	if mode == loadReplace {
		changed = contentChanged(c.el.InnerHTML(), resp.HTML)
		if changed {
			c.el.SetInnerHTML(resp.HTML)
		}
	} else {
		c.el.AppendHTML(resp.HTML)
	}

	c.hasMore = resp.HasMore
	c.loadedOnce = true
	c.retryCount = 0
	c.lastFailed = false

	writeHistory := mode == loadReplace && pushHistory && c.root.history != nil
	var replaceEntry bool
	if writeHistory {
		// The first write replaces the current entry so the initial
		// bound state does not become a spurious back-button stop.
		replaceEntry = !c.historyInit || c.root.cfg.AlwaysReplaceHistory
		c.historyInit = true
	}
	state := c.historyState()
	c.mu.Unlock()

	if changed {
		c.root.Bind(c.el)
	}
	if mode == loadReplace && snap != nil {
		RestoreAll(c.el, c.root.doc, *snap)
	}
	if writeHistory {
		if replaceEntry {
			c.root.history.Replace(rel, state)
		} else {
			c.root.history.Push(rel, state)
		}
	}

	c.root.events.Emit(Event{
		Type:       EventLoaded,
		Controller: c,
		URL:        rel,
		Response:   resp,
		Changed:    changed,
	})
}

// boundary is the slice width compared at each end of the payload before
// falling back to the checksum.
const changeBoundary = 64

// contentChanged reports whether newHTML differs from oldHTML. Two
// payloads are considered unchanged only if they are identical, or - as a
// fast approximation for large payloads - equal in length with matching
// 64-byte head and tail slices and matching xxhash sums. A false
// "unchanged" verdict therefore requires an xxhash collision between
// equal-length payloads sharing both boundary slices; that skips only a
// cosmetically identical re-render, and anything short enough to compare
// outright is compared outright. When in doubt, changed.
func contentChanged(oldHTML, newHTML string) bool {
	if oldHTML == newHTML {
		return false
	}
	if len(oldHTML) != len(newHTML) {
		return true
	}
	if len(oldHTML) < 2*changeBoundary {
		// Short payloads were already compared in full.
		return true
	}
	if oldHTML[:changeBoundary] != newHTML[:changeBoundary] {
		return true
	}
	if oldHTML[len(oldHTML)-changeBoundary:] != newHTML[len(newHTML)-changeBoundary:] {
		return true
	}
	return xxhash.Sum64String(oldHTML) != xxhash.Sum64String(newHTML)
}
