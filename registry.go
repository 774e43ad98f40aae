package livefrag

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Binder attaches behavior to every element matching Selector, exactly
// once per element. Binders are thin event listeners: they resolve "their"
// controller (nearest container, or an explicit data-live-target) and call
// the controller's public contract.
type Binder struct {
	Selector string
	Bind     func(el Element, root *Root)
}

// Feature is an initialization hook that installs a capability on the
// shared Root (toast notifications, for example). Init runs synchronously
// at registration time, before the first bind sweep.
type Feature struct {
	Init func(root *Root)
}

// RegisterBinder registers a binder under a unique name. A duplicate name
// is rejected with ErrDuplicateName and reported; the first registration
// stays active. Binders registered after a bind sweep only take effect on
// the next sweep.
func (r *Root) RegisterBinder(name string, b Binder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.binders[name]; exists {
		r.log.Warn("livefrag: duplicate binder registration ignored", zap.String("name", name))
		return fmt.Errorf("%w: binder %q", ErrDuplicateName, name)
	}
	r.binders[name] = b
	r.binderOrder = append(r.binderOrder, name)
	return nil
}

// RegisterFeature registers a feature under a unique name and runs its
// Init hook synchronously. Duplicate names are rejected the same way as
// binders, without invoking Init.
func (r *Root) RegisterFeature(name string, f Feature) error {
	r.mu.Lock()
	if _, exists := r.features[name]; exists {
		r.mu.Unlock()
		r.log.Warn("livefrag: duplicate feature registration ignored", zap.String("name", name))
		return fmt.Errorf("%w: feature %q", ErrDuplicateName, name)
	}
	r.features[name] = f
	r.mu.Unlock()

	if f.Init != nil {
		f.Init(r)
	}
	return nil
}

// Bind scans subtree (the whole document when nil) for elements matching
// registered binder selectors and binds each unbound match. Idempotency
// is enforced by a per-binder marker attribute, which is what makes it
// safe to re-run the sweep over freshly inserted server HTML after every
// content swap without double-attaching listeners. A panicking binder is
// reported and isolated; remaining elements and binders still run.
func (r *Root) Bind(subtree Element) {
	if subtree == nil {
		subtree = r.doc.Root()
	}

	r.mu.Lock()
	order := make([]string, len(r.binderOrder))
	copy(order, r.binderOrder)
	binders := make(map[string]Binder, len(r.binders))
	for name, b := range r.binders {
		binders[name] = b
	}
	r.mu.Unlock()

	for _, name := range order {
		b := binders[name]
		marker := boundMarker(name)
		for _, el := range candidates(subtree, b.Selector) {
			if _, bound := el.Attr(marker); bound {
				continue
			}
			r.bindOne(name, b, el)
			el.SetAttr(marker, "true")
		}
	}
}

// candidates returns subtree's descendants matching selector, plus
// subtree itself when it matches. Including the subtree root lets the
// sweep re-bind a container whose own marker was cleared by Cleanup.
func candidates(subtree Element, selector string) []Element {
	els := subtree.Query(selector)
	if subtree.Matches(selector) {
		els = append([]Element{subtree}, els...)
	}
	return els
}

func (r *Root) bindOne(name string, b Binder, el Element) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("livefrag: binder panicked",
				zap.String("binder", name),
				zap.Any("panic", rec))
		}
	}()
	b.Bind(el, r)
}

// Cleanup walks subtree (whole document when nil), disposes controllers
// for contained containers and clears all bound markers so a later Bind
// starts fresh. Safe to call repeatedly and on subtrees that were never
// bound; elements removed externally are simply not found.
func (r *Root) Cleanup(subtree Element) {
	if subtree == nil {
		subtree = r.doc.Root()
	}

	for _, el := range candidates(subtree, "["+AttrContainer+"]") {
		if c := r.controllerOf(el); c != nil {
			c.Dispose()
		}
	}

	r.mu.Lock()
	order := make([]string, len(r.binderOrder))
	copy(order, r.binderOrder)
	r.mu.Unlock()

	for _, name := range order {
		marker := boundMarker(name)
		for _, el := range candidates(subtree, "["+marker+"]") {
			el.RemoveAttr(marker)
		}
	}
}

// boundMarker derives the per-binder marker attribute name. Binder names
// are expected to be attribute-safe; anything else is lowercased with
// spaces collapsed to dashes.
func boundMarker(name string) string {
	name = strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	return "data-live-bound-" + name
}
