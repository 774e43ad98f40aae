package livefrag_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/livefrag"
	"github.com/pthm/livefrag/adapters/memdom"
)

// fixture wires an httptest server, an in-memory document and a Root with
// the default binders, and collects lifecycle events on channels.
type fixture struct {
	t       *testing.T
	srv     *httptest.Server
	doc     *memdom.Document
	hist    *memdom.History
	root    *livefrag.Root
	loaded  chan livefrag.Event
	errored chan livefrag.Event

	mu       sync.Mutex
	requests []string // path?query of every request seen
}

func newFixture(t *testing.T, handler http.HandlerFunc, cfg livefrag.Config) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		loaded:  make(chan livefrag.Event, 32),
		errored: make(chan livefrag.Event, 32),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.URL.RequestURI())
		f.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(f.srv.Close)

	f.doc = memdom.New(f.srv.URL)
	f.hist = memdom.NewHistory()
	f.root = livefrag.New(f.doc, f.hist, cfg)
	t.Cleanup(f.root.Close)

	livefrag.RegisterDefaults(f.root)
	f.root.Events().On(livefrag.EventLoaded, func(ev livefrag.Event) { f.loaded <- ev })
	f.root.Events().On(livefrag.EventLoadError, func(ev livefrag.Event) { f.errored <- ev })
	return f
}

func (f *fixture) waitLoaded() livefrag.Event {
	f.t.Helper()
	select {
	case ev := <-f.loaded:
		return ev
	case <-time.After(2 * time.Second):
		f.t.Fatal("timed out waiting for loaded event")
		return livefrag.Event{}
	}
}

func (f *fixture) waitError() livefrag.Event {
	f.t.Helper()
	select {
	case ev := <-f.errored:
		return ev
	case <-time.After(2 * time.Second):
		f.t.Fatal("timed out waiting for error event")
		return livefrag.Event{}
	}
}

func (f *fixture) noLoadedWithin(d time.Duration) {
	f.t.Helper()
	select {
	case ev := <-f.loaded:
		f.t.Fatalf("unexpected loaded event for %s", ev.URL)
	case <-time.After(d):
	}
}

func (f *fixture) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fixture) lastRequest() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return ""
	}
	return f.requests[len(f.requests)-1]
}

func writeEnvelope(w http.ResponseWriter, html string, hasMore bool) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"html": html, "has_more": hasMore})
}

// echoHandler answers every request with an envelope describing the query.
func echoHandler(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, fmt.Sprintf("<li>q=%s</li>", r.URL.RawQuery), true)
}

func TestInitialLoad(t *testing.T) {
	f := newFixture(t, echoHandler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)

	ev := f.waitLoaded()
	assert.Equal(t, "/orders", ev.URL)
	assert.True(t, ev.Changed)

	container := f.doc.QueryOne("#c")
	require.NotNil(t, container)
	assert.Equal(t, "<li>q=</li>", container.InnerHTML())

	// The engine marked its request.
	assert.Equal(t, 1, f.requestCount())

	// The initial load replaced the current history entry rather than
	// pushing a new one.
	entries := f.hist.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Replaced)
	assert.Equal(t, "/orders", entries[0].URL)

	state, ok := livefrag.DecodeHistoryState(entries[0].State)
	require.True(t, ok)
	assert.Equal(t, "/orders", state.Path)
}

func TestRequestHeaders(t *testing.T) {
	var gotLive, gotToken string
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotLive = r.Header.Get(livefrag.HeaderLiveRequest)
		gotToken = r.Header.Get(livefrag.HeaderCSRFToken)
		writeEnvelope(w, "ok", false)
	}
	f := newFixture(t, handler, livefrag.Config{CSRFToken: "tok42"})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)
	f.waitLoaded()

	assert.Equal(t, "true", gotLive)
	assert.Equal(t, "tok42", gotToken)
}

func TestParamLifecycle(t *testing.T) {
	f := newFixture(t, echoHandler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders?page=1"></div>`)
	f.root.Bind(nil)
	f.waitLoaded()

	c := f.root.GetController("#c")
	require.NotNil(t, c)

	// Changing a filter resets pagination before refresh.
	c.UpdateParam("search", "acme")
	c.ResetPage()
	c.Refresh()
	ev := f.waitLoaded()
	assert.Equal(t, "/orders?search=acme", ev.URL)
	assert.Equal(t, "/orders?search=acme", f.lastRequest())

	// Load more appends page=2 without disturbing other params.
	c.LoadMore()
	ev = f.waitLoaded()
	assert.Equal(t, "/orders?search=acme&page=2", ev.URL)

	// A second load-more keeps incrementing.
	c.LoadMore()
	ev = f.waitLoaded()
	assert.Equal(t, "/orders?search=acme&page=3", ev.URL)

	// Refresh removes page again.
	c.Refresh()
	ev = f.waitLoaded()
	assert.Equal(t, "/orders?search=acme", ev.URL)

	// Deleting via empty value.
	c.UpdateParam("search", "")
	c.Refresh()
	ev = f.waitLoaded()
	assert.Equal(t, "/orders", ev.URL)
}

func TestAppendLoad(t *testing.T) {
	f := newFixture(t, echoHandler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)
	f.waitLoaded()

	c := f.root.GetController("#c")
	require.NotNil(t, c)
	first := f.doc.QueryOne("#c").InnerHTML()

	histBefore := f.hist.Len()
	c.LoadMore()
	f.waitLoaded()

	// Appended, not replaced, and no history write for append loads.
	got := f.doc.QueryOne("#c").InnerHTML()
	assert.True(t, strings.HasPrefix(got, first), "append must keep existing content")
	assert.Contains(t, got, "q=page=2")
	assert.Equal(t, histBefore, f.hist.Len())
	assert.True(t, c.HasMore())
}

func TestSupersession(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{})
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("v") == "1" {
			close(arrived)
			<-release
		}
		writeEnvelope(w, "<li>v="+r.URL.Query().Get("v")+"</li>", false)
	}
	f := newFixture(t, handler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="true"></div>`)
	f.root.Bind(nil)

	c := f.root.GetController("#c")
	require.NotNil(t, c)
	require.NoError(t, c.SetURL("/orders"))

	c.UpdateParam("v", "1")
	c.Refresh()
	<-arrived // first request is in flight

	c.UpdateParam("v", "2")
	c.Refresh()

	ev := f.waitLoaded()
	assert.Equal(t, "/orders?v=2", ev.URL)
	assert.Equal(t, "<li>v=2</li>", f.doc.QueryOne("#c").InnerHTML())

	// Let the superseded response finish; it must be discarded.
	close(release)
	f.noLoadedWithin(200 * time.Millisecond)
	assert.Equal(t, "<li>v=2</li>", f.doc.QueryOne("#c").InnerHTML())
}

func TestUnchangedContentSuppressed(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, "<li>stable</li>", false)
	}
	f := newFixture(t, handler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)
	ev := f.waitLoaded()
	assert.True(t, ev.Changed)

	container := f.doc.QueryOne("#c")
	container.SetScrollOffset(140, 0)

	c := f.root.GetController("#c")
	c.Refresh()
	ev = f.waitLoaded()
	assert.False(t, ev.Changed, "byte-identical content must not mark changed")

	top, _ := container.ScrollOffset()
	assert.Equal(t, 140, top, "scroll must survive a no-op refresh")
}

func TestRetryThenErrorState(t *testing.T) {
	var healthy atomic.Bool
	handler := func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			writeEnvelope(w, "<li>recovered</li>", false)
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}
	f := newFixture(t, handler, livefrag.Config{
		MaxRetries: 2,
		RetryDelay: 20 * time.Millisecond,
	})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)

	ev := f.waitError()
	assert.Error(t, ev.Err)

	// Initial attempt plus exactly two scheduled retries.
	assert.Equal(t, 3, f.requestCount())

	// No further automatic retry beyond the ceiling.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 3, f.requestCount())

	// The inline error state with its retry affordance is rendered.
	inner := f.doc.QueryOne("#c").InnerHTML()
	assert.Contains(t, inner, "live-error")
	require.NotNil(t, f.doc.QueryOne("["+livefrag.AttrRetry+"]"))

	// Manual retry recovers.
	healthy.Store(true)
	f.doc.QueryOne("[" + livefrag.AttrRetry + "]").(*memdom.Element).Dispatch("click")
	f.waitLoaded()
	assert.Equal(t, "<li>recovered</li>", f.doc.QueryOne("#c").InnerHTML())
}

func TestTimeoutIsRetried(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		writeEnvelope(w, "late", false)
	}
	f := newFixture(t, handler, livefrag.Config{
		Timeout:    40 * time.Millisecond,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
	})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)

	f.waitError()
	assert.Equal(t, 2, f.requestCount(), "initial attempt plus one retry")
}

func TestRateLimitDropsSilently(t *testing.T) {
	f := newFixture(t, echoHandler, livefrag.Config{
		MaxRequests: 2,
		RateWindow:  10 * time.Second,
	})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)
	f.waitLoaded()

	c := f.root.GetController("#c")
	c.Reload()
	f.waitLoaded()

	// Third fetch of the same URL inside the window: dropped, no error.
	c.Reload()
	f.noLoadedWithin(200 * time.Millisecond)
	assert.Equal(t, 2, f.requestCount())
}

func TestCrossOriginRejected(t *testing.T) {
	f := newFixture(t, echoHandler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)
	f.waitLoaded()

	c := f.root.GetController("#c")
	err := c.SetURL("http://evil.example/steal")
	require.Error(t, err)
	assert.True(t, livefrag.IsCrossOrigin(err))
	assert.Equal(t, "/orders", c.Path(), "rejected SetURL must not change state")

	// Navigate to a cross-origin URL is a reported no-op.
	before := f.requestCount()
	c.Navigate("http://evil.example/steal")
	f.noLoadedWithin(150 * time.Millisecond)
	assert.Equal(t, before, f.requestCount())
}

func TestBarePathFetchesUnderOrigin(t *testing.T) {
	f := newFixture(t, echoHandler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="orders"></div>`)
	f.root.Bind(nil)

	ev := f.waitLoaded()
	assert.Equal(t, "/orders", ev.URL)
	assert.Equal(t, "/orders", f.lastRequest())
}

func TestRedirectNavigatesWholePage(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	}
	f := newFixture(t, handler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)

	require.Eventually(t, func() bool {
		navs := f.doc.Navigations()
		return len(navs) == 1 && navs[0] == "/login"
	}, 2*time.Second, 10*time.Millisecond)

	// A redirect is never treated as content.
	assert.NotContains(t, f.doc.QueryOne("#c").InnerHTML(), "login")
}

func TestSkeletonOnlyForEmptyContainers(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{}, 4)
	handler := func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-release
		writeEnvelope(w, "<li>content</li>", false)
	}
	f := newFixture(t, handler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)

	<-arrived
	assert.Contains(t, f.doc.QueryOne("#c").InnerHTML(), "live-skeleton")

	close(release)
	f.waitLoaded()
	assert.Equal(t, "<li>content</li>", f.doc.QueryOne("#c").InnerHTML())

	// Existing content is never replaced by a skeleton.
	c := f.root.GetController("#c")
	c.Reload()
	<-arrived
	assert.Equal(t, "<li>content</li>", f.doc.QueryOne("#c").InnerHTML())
	f.waitLoaded()
}

func TestHistoryPushAfterFirstReplace(t *testing.T) {
	f := newFixture(t, echoHandler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)
	f.waitLoaded()

	c := f.root.GetController("#c")
	c.UpdateParam("search", "acme")
	c.Refresh()
	f.waitLoaded()
	c.UpdateParam("search", "globex")
	c.Refresh()
	f.waitLoaded()

	entries := f.hist.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "/orders", entries[0].URL)
	assert.Equal(t, "/orders?search=acme", entries[1].URL)
	assert.Equal(t, "/orders?search=globex", entries[2].URL)
}

func TestHistoryAlwaysReplaceMode(t *testing.T) {
	f := newFixture(t, echoHandler, livefrag.Config{AlwaysReplaceHistory: true})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)
	f.waitLoaded()

	c := f.root.GetController("#c")
	c.UpdateParam("search", "acme")
	c.Refresh()
	f.waitLoaded()

	assert.Equal(t, 1, f.hist.Len())
	assert.Equal(t, "/orders?search=acme", f.hist.Entries()[0].URL)
}

func TestHandlePopRoutesToController(t *testing.T) {
	f := newFixture(t, echoHandler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)
	f.waitLoaded()

	c := f.root.GetController("#c")
	c.UpdateParam("search", "acme")
	c.Refresh()
	f.waitLoaded()

	entries := f.hist.Entries()
	require.Len(t, entries, 2)
	histLen := f.hist.Len()

	// Going "back" to the first entry replays its load on the
	// originating controller without writing history again.
	require.True(t, f.root.HandlePop(entries[0].State))
	ev := f.waitLoaded()
	assert.Equal(t, "/orders", ev.URL)
	assert.Equal(t, "/orders", c.URL())
	assert.Equal(t, histLen, f.hist.Len())

	// Foreign or absent state is not ours to handle.
	assert.False(t, f.root.HandlePop(nil))
	assert.False(t, f.root.HandlePop([]byte("not msgpack")))
}

func TestOnlineSweepRefreshesFailed(t *testing.T) {
	var healthy atomic.Bool
	handler := func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			writeEnvelope(w, "<li>back</li>", false)
			return
		}
		http.Error(w, "down", http.StatusBadGateway)
	}
	f := newFixture(t, handler, livefrag.Config{
		MaxRetries: -1, // no automatic retries
		RetryDelay: 10 * time.Millisecond,
	})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)
	f.waitError()

	healthy.Store(true)
	f.root.SetOnline(false)
	f.root.SetOnline(true)

	f.waitLoaded()
	assert.Equal(t, "<li>back</li>", f.doc.QueryOne("#c").InnerHTML())
}

// The online sweep reads each controller's failed flag while fetch
// completions write it from their own goroutines; run with -race.
func TestOnlineSweepDuringActiveLoads(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}
	f := newFixture(t, handler, livefrag.Config{
		MaxRetries: -1, // every failure lands immediately, no retry timers
	})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders"></div>`)
	f.root.Bind(nil)
	f.waitError()

	c := f.root.GetController("#c")
	require.NotNil(t, c)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				c.Reload()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				f.root.SetOnline(false)
				f.root.SetOnline(true)
			}
		}
	}()

	// Keep the error channel draining so emits never back up.
	go func() {
		for {
			select {
			case <-f.errored:
			case <-done:
				return
			}
		}
	}()

	time.Sleep(200 * time.Millisecond)
	close(done)
	wg.Wait()

	assert.False(t, c.Disposed())
}

func TestDisposeStopsEverything(t *testing.T) {
	f := newFixture(t, echoHandler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="c" data-live="/orders" data-live-interval="1"></div>`)
	f.root.Bind(nil)
	f.waitLoaded()

	c := f.root.GetController("#c")
	require.NotNil(t, c)
	c.Dispose()
	c.Dispose() // idempotent
	assert.True(t, c.Disposed())
	assert.Nil(t, f.root.GetController("#c"))

	// No further fetches are scheduled after disposal.
	before := f.requestCount()
	c.Refresh()
	c.LoadMore()
	f.noLoadedWithin(200 * time.Millisecond)
	assert.Equal(t, before, f.requestCount())
}

func TestNestedContainersBindAfterSwap(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/outer":
			writeEnvelope(w, `<div id="inner" data-live="/inner"></div>`, false)
		default:
			writeEnvelope(w, "<li>nested</li>", false)
		}
	}
	f := newFixture(t, handler, livefrag.Config{})
	f.doc.Body().SetInnerHTML(`<div id="outer" data-live="/outer"></div>`)
	f.root.Bind(nil)

	// Outer load inserts a nested container; the post-swap bind sweep
	// must activate it and trigger its own load.
	require.Eventually(t, func() bool {
		inner := f.doc.QueryOne("#inner")
		return inner != nil && inner.InnerHTML() == "<li>nested</li>"
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotNil(t, f.root.GetController("#inner"))
}
