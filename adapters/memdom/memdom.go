// Package memdom is an in-memory implementation of the livefrag document
// interfaces, used by the engine's tests and for server-side simulation
// of live regions.
//
// Markup installed with SetInnerHTML/AppendHTML is kept verbatim as the
// element's innerHTML (so byte-identical comparisons behave exactly as in
// a browser swap) and parsed with golang.org/x/net/html into child
// elements for selector queries. Later mutations of child state (values,
// attributes) deliberately do not re-serialize into the parent's
// innerHTML - the engine only ever compares what it installed.
package memdom

import (
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pthm/livefrag"
)

// Document is an in-memory livefrag.Document rooted at a body element.
type Document struct {
	mu     sync.Mutex
	origin string
	root   *Element
	active *Element

	navigations []string
}

// New creates an empty document with the given origin
// (scheme://host[:port]).
func New(origin string) *Document {
	d := &Document{origin: origin}
	d.root = &Element{doc: d, tag: "body", attrs: map[string]string{}}
	return d
}

// Root returns the document body.
func (d *Document) Root() livefrag.Element {
	return d.root
}

// Body returns the concrete body element, for test convenience.
func (d *Document) Body() *Element {
	return d.root
}

// Query returns all elements in the document matching selector.
func (d *Document) Query(selector string) []livefrag.Element {
	return d.root.Query(selector)
}

// QueryOne returns the first match in document order, or nil.
func (d *Document) QueryOne(selector string) livefrag.Element {
	els := d.root.Query(selector)
	if len(els) == 0 {
		return nil
	}
	return els[0]
}

// ActiveElement returns the focused element, or nil.
func (d *Document) ActiveElement() livefrag.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil
	}
	return d.active
}

// Origin returns the configured page origin.
func (d *Document) Origin() string {
	return d.origin
}

// Navigate records a full page navigation.
func (d *Document) Navigate(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations = append(d.navigations, url)
}

// Navigations returns the full-page navigations performed so far.
func (d *Document) Navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.navigations))
	copy(out, d.navigations)
	return out
}

// Element is an in-memory livefrag.Element.
type Element struct {
	doc    *Document
	tag    string
	attrs  map[string]string
	parent *Element

	children []*Element
	inner    string
	text     string

	value    string
	checked  bool
	selected []string

	scrollTop  int
	scrollLeft int
	selStart   int
	selEnd     int

	handlers map[string][]func()
}

var _ livefrag.Element = (*Element)(nil)
var _ livefrag.Document = (*Document)(nil)

// Tag returns the lowercase tag name.
func (e *Element) Tag() string {
	return e.tag
}

// Attr returns the attribute value and presence.
func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	v, ok := e.attrs[name]
	return v, ok
}

// SetAttr sets an attribute.
func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.attrs[name] = value
}

// RemoveAttr removes an attribute.
func (e *Element) RemoveAttr(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	delete(e.attrs, name)
}

// Matches reports whether the element matches a compound selector.
func (e *Element) Matches(selector string) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return matchesList(e, selector)
}

// Query returns matching descendants in document order.
func (e *Element) Query(selector string) []livefrag.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	var out []livefrag.Element
	e.walk(func(desc *Element) {
		if matchesList(desc, selector) {
			out = append(out, desc)
		}
	})
	return out
}

func (e *Element) walk(visit func(*Element)) {
	for _, c := range e.children {
		visit(c)
		c.walk(visit)
	}
}

// Closest returns the nearest ancestor-or-self matching selector, or nil.
func (e *Element) Closest(selector string) livefrag.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for cur := e; cur != nil; cur = cur.parent {
		if matchesList(cur, selector) {
			return cur
		}
	}
	return nil
}

// Parent returns the parent element, or nil at the root.
func (e *Element) Parent() livefrag.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.parent == nil {
		return nil
	}
	return e.parent
}

// InnerHTML returns the markup most recently installed.
func (e *Element) InnerHTML() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.inner
}

// SetInnerHTML replaces the element's content. If the focused element was
// inside, focus is lost - as it is in a browser when the focused node is
// replaced.
func (e *Element) SetInnerHTML(markup string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.doc.active != nil && e.isAncestorOf(e.doc.active) {
		e.doc.active = nil
	}
	e.inner = markup
	e.children = parseFragment(markup, e.doc, e)
}

// AppendHTML inserts markup at the end of the element's content.
func (e *Element) AppendHTML(markup string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.inner += markup
	e.children = append(e.children, parseFragment(markup, e.doc, e)...)
}

// PrependHTML inserts markup at the start of the element's content.
func (e *Element) PrependHTML(markup string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.inner = markup + e.inner
	e.children = append(parseFragment(markup, e.doc, e), e.children...)
}

// Remove detaches the element from its parent.
func (e *Element) Remove() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.parent == nil {
		return
	}
	siblings := e.parent.children
	for i, s := range siblings {
		if s == e {
			e.parent.children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if e.doc.active != nil && (e.doc.active == e || e.isAncestorOf(e.doc.active)) {
		e.doc.active = nil
	}
	e.parent = nil
}

func (e *Element) isAncestorOf(other *Element) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == e {
			return true
		}
	}
	return false
}

// Value returns the control value.
func (e *Element) Value() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.value
}

// SetValue sets the control value.
func (e *Element) SetValue(v string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.value = v
}

// Checked returns the checked state.
func (e *Element) Checked() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.checked
}

// SetChecked sets the checked state.
func (e *Element) SetChecked(checked bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.checked = checked
}

// SelectedValues returns the selected option values of a select.
func (e *Element) SelectedValues() []string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	out := make([]string, len(e.selected))
	copy(out, e.selected)
	return out
}

// SetSelectedValues sets the selected option values.
func (e *Element) SetSelectedValues(values []string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.selected = append([]string(nil), values...)
	if len(values) > 0 {
		e.value = values[0]
	}
}

// ScrollOffset returns the scroll position.
func (e *Element) ScrollOffset() (top, left int) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.scrollTop, e.scrollLeft
}

// SetScrollOffset sets the scroll position.
func (e *Element) SetScrollOffset(top, left int) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.scrollTop, e.scrollLeft = top, left
}

// SelectionRange returns the text-selection range.
func (e *Element) SelectionRange() (start, end int) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.selStart, e.selEnd
}

// SetSelectionRange sets the text-selection range.
func (e *Element) SetSelectionRange(start, end int) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.selStart, e.selEnd = start, end
}

// Focus makes this the document's active element.
func (e *Element) Focus() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.active = e
}

// On attaches an event handler.
func (e *Element) On(event string, handler func()) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[string][]func())
	}
	e.handlers[event] = append(e.handlers[event], handler)
}

// Dispatch fires an event on the element, invoking handlers in
// registration order. Handlers run without the document lock held, so
// they are free to mutate the document or drive controllers.
func (e *Element) Dispatch(event string) {
	e.doc.mu.Lock()
	hs := make([]func(), len(e.handlers[event]))
	copy(hs, e.handlers[event])
	e.doc.mu.Unlock()
	for _, h := range hs {
		h()
	}
}

// Text returns the element's direct text content (parsed from markup).
func (e *Element) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.text
}

// parseFragment parses markup into child elements. Caller holds doc.mu.
func parseFragment(markup string, doc *Document, parent *Element) []*Element {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil
	}
	var out []*Element
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, fromNode(n, doc, parent))
		}
	}
	return out
}

func fromNode(n *html.Node, doc *Document, parent *Element) *Element {
	el := &Element{
		doc:    doc,
		tag:    strings.ToLower(n.Data),
		attrs:  make(map[string]string, len(n.Attr)),
		parent: parent,
	}
	for _, a := range n.Attr {
		el.attrs[a.Key] = a.Val
	}
	if v, ok := el.attrs["value"]; ok {
		el.value = v
	}
	if _, ok := el.attrs["checked"]; ok {
		el.checked = true
	}

	var inner strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&inner, c)
		switch c.Type {
		case html.ElementNode:
			el.children = append(el.children, fromNode(c, doc, el))
		case html.TextNode:
			el.text += c.Data
		}
	}
	el.inner = inner.String()

	switch el.tag {
	case "textarea":
		el.value = el.text
	case "select":
		for _, opt := range el.children {
			if opt.tag != "option" {
				continue
			}
			if _, ok := opt.attrs["selected"]; ok {
				el.selected = append(el.selected, opt.optionValue())
			}
		}
		if len(el.selected) == 0 {
			// Browsers select the first option by default.
			for _, opt := range el.children {
				if opt.tag == "option" {
					el.selected = []string{opt.optionValue()}
					break
				}
			}
		}
		if len(el.selected) > 0 {
			el.value = el.selected[0]
		}
	}

	return el
}

func (e *Element) optionValue() string {
	if v, ok := e.attrs["value"]; ok {
		return v
	}
	return strings.TrimSpace(e.text)
}
