// Package livefrag keeps regions of a document "live": a container
// declares a URL through element markup, and the engine fetches its
// content, keeps it in sync with user-driven parameter changes (search,
// filter, sort, pagination) and refreshes it without a full page
// navigation.
//
// The engine is headless. The document is an interface (Document,
// Element), so the same core drives an in-memory tree (adapters/memdom,
// used by the tests and for server-side simulation) or a real browser DOM
// behind a WASM adapter. Content moves wholesale as innerHTML strings -
// there is no node-level diffing, no virtual DOM and no templating.
//
// # Core Concepts
//
// A Controller is the per-container synchronization state machine. It
// owns the container's path, ordered query parameters and fragment, and
// the fetch lifecycle:
//
//   - at most one in-flight fetch; a new load aborts the old one
//   - a request generation counter discards stale responses, so the DOM
//     only ever reflects the most recently initiated request
//   - failures retry with linear backoff up to a ceiling, then render an
//     inline error state with a retry affordance
//   - replace loads skip the swap entirely when fetched content matches
//     what is displayed, preserving focus, scroll and animation state
//   - scroll offsets, focus, caret and in-progress input survive a swap
//
// Binders attach behavior to matching elements exactly once; Features
// install capabilities on the shared Root. Both are registered by name
// before the first bind sweep:
//
//	root := livefrag.New(doc, hist, livefrag.Config{Logger: logger})
//	livefrag.RegisterDefaults(root)
//	root.RegisterFeature("toasts", livefrag.ToastFeature())
//	root.Bind(nil)
//
// After every content swap the bind sweep re-runs over the inserted
// markup, so binders in server-rendered HTML activate automatically.
// Idempotency is enforced with marker attributes - rebinding the same
// subtree never double-attaches listeners.
//
// # The DOM Contract
//
// A container opts in with the data-live attribute, carrying either the
// fetch URL or "true" when the URL is set programmatically:
//
//	<div data-live="/orders" data-live-interval="30">...</div>
//
// Stock binders cover the common controls: data-live-search (debounced
// text input), data-live-sort (clickable header), data-live-filter,
// data-live-toggle, data-live-more (append pagination), data-live-page
// (nav links), data-live-retry. Each is a thin listener that batches
// parameter updates and calls Refresh, LoadMore or Navigate; changing a
// filtering parameter always resets pagination first.
//
// # The Server Contract
//
// Fetches are same-origin GETs marked with X-Live-Request (and an
// optional anti-forgery token). Servers answer with a JSON envelope:
//
//	{"html": "<li>...</li>", "has_more": true}
//
// A non-JSON response is treated as raw HTML. An HTTP redirect is never
// treated as content - the engine navigates the whole page. A separate
// side-channel envelope (ActionEnvelope) lets form and confirm handlers
// request prepend/append/replace/remove/refresh effects; ProcessAction
// applies it using only the public controller primitives.
//
// # History
//
// Non-append loads write browser history through the History interface:
// the first write for a controller replaces the current entry, later
// writes push. Entries carry a msgpack state blob tagging them as
// engine-generated; Root.HandlePop routes back/forward navigation to the
// originating controller instead of reloading the page.
//
// # Error Handling
//
// Cancellation, rate-limited loads and superseded responses are silently
// dropped. Cross-origin URLs are rejected locally. Transport failures
// resolve entirely inside the retry pipeline - Refresh and LoadMore never
// return errors - and become observable only through lifecycle events and
// the rendered error state. Binder and event-handler panics are isolated
// and reported through the configured zap logger.
package livefrag
