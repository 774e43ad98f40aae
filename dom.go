package livefrag

// Element is one node in the host document. The engine never walks or
// diffs node internals - content moves wholesale as innerHTML strings -
// but it does query subtrees by selector, read and write form-control
// state, and track scroll/focus for preservation across swaps.
//
// adapters/memdom provides an in-memory implementation for tests and
// server-side simulation; a WASM adapter would delegate to the browser DOM.
type Element interface {
	// Tag returns the lowercase tag name.
	Tag() string

	// Attr returns the attribute value and whether it is present.
	Attr(name string) (string, bool)
	SetAttr(name, value string)
	RemoveAttr(name string)

	// Matches reports whether the element matches a compound CSS selector
	// (tag, #id, .class, [attr], [attr=value] and conjunctions thereof).
	Matches(selector string) bool

	// Query returns descendants matching selector, in document order.
	// The element itself is never included.
	Query(selector string) []Element

	// Closest returns the nearest ancestor-or-self matching selector,
	// or nil.
	Closest(selector string) Element

	// Parent returns the parent element, or nil at the root.
	Parent() Element

	// InnerHTML returns the markup most recently installed in the element.
	InnerHTML() string
	// SetInnerHTML replaces the element's content wholesale.
	SetInnerHTML(html string)
	// AppendHTML inserts markup at the end of the element's content.
	AppendHTML(html string)
	// PrependHTML inserts markup at the start of the element's content.
	PrependHTML(html string)

	// Remove detaches the element from its parent.
	Remove()

	// Form-control state.
	Value() string
	SetValue(v string)
	Checked() bool
	SetChecked(checked bool)
	SelectedValues() []string
	SetSelectedValues(values []string)

	// Scroll offsets in pixels.
	ScrollOffset() (top, left int)
	SetScrollOffset(top, left int)

	// Text-selection range for focusable text controls. Non-text
	// elements return (0, 0).
	SelectionRange() (start, end int)
	SetSelectionRange(start, end int)

	// Focus makes this the document's active element.
	Focus()

	// On attaches an event handler ("click", "input", "change", ...).
	// Handlers attached through On are the binders' only event surface.
	On(event string, handler func())
}

// Document is the host document the engine operates on. Elements are not
// owned by the engine - the host may remove them at any time, so lookups
// tolerate absence.
type Document interface {
	// Root returns the document's content root (body equivalent).
	Root() Element

	// Query returns all elements in the document matching selector.
	Query(selector string) []Element

	// QueryOne returns the first match, or nil.
	QueryOne(selector string) Element

	// ActiveElement returns the currently focused element, or nil.
	ActiveElement() Element

	// Origin returns the page origin (scheme://host[:port]) used for
	// same-origin enforcement and for resolving relative fetch URLs.
	Origin() string

	// Navigate performs a full page navigation. The engine calls this
	// when a fetch is answered with an HTTP redirect.
	Navigate(url string)
}

// History is the browser-history surface the engine writes to. Entries
// carry an opaque state blob (see HistoryState) that tags them as
// internally generated so back/forward can be routed to the originating
// controller instead of reloading the page.
type History interface {
	// Replace overwrites the current history entry.
	Replace(url string, state []byte)

	// Push appends a new history entry.
	Push(url string, state []byte)
}
