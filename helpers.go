package livefrag

import (
	"html"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"
)

// Escape HTML-escapes s for safe interpolation into markup the engine
// generates itself (toasts, error states). Server-produced fragment HTML
// is installed verbatim - escaping it is the server's contract.
func Escape(s string) string {
	return html.EscapeString(s)
}

// NewID returns a unique identifier, used for controller identities and
// generated element IDs. IDs are sortable by creation time.
func NewID() string {
	return xid.New().String()
}

// Debounce returns a function that schedules fn to run once d after the
// most recent call. Rapid calls collapse into a single trailing-edge
// invocation - the search binder uses this so each keystroke does not
// issue a fetch.
func Debounce(d time.Duration, fn func()) func() {
	var mu sync.Mutex
	var t *time.Timer
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if t != nil {
			t.Stop()
		}
		t = time.AfterFunc(d, fn)
	}
}

// Throttle returns a function that invokes fn immediately, then at most
// once per d. Calls inside the quiet period are dropped (leading edge).
func Throttle(d time.Duration, fn func()) func() {
	var mu sync.Mutex
	var last time.Time
	return func() {
		mu.Lock()
		if time.Since(last) < d {
			mu.Unlock()
			return
		}
		last = time.Now()
		mu.Unlock()
		fn()
	}
}

// Request headers that mark a fetch as an asynchronous content request.
const (
	HeaderLiveRequest = "X-Live-Request"
	HeaderCSRFToken   = "X-CSRF-Token"
)

// decorateRequest stamps the standard live-request headers onto req.
func decorateRequest(req *http.Request, csrfToken string) {
	req.Header.Set(HeaderLiveRequest, "true")
	req.Header.Set("Accept", "application/json, text/html")
	if csrfToken != "" {
		req.Header.Set(HeaderCSRFToken, csrfToken)
	}
}

// IsLiveRequest returns true if the request originated from this engine.
// Servers use this to decide between a fragment envelope and a full page:
//
//	if livefrag.IsLiveRequest(r) {
//	    writeEnvelope(w, fragment)
//	    return
//	}
//	renderFullPage(w)
func IsLiveRequest(r *http.Request) bool {
	return r.Header.Get(HeaderLiveRequest) == "true"
}
