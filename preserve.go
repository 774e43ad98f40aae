package livefrag

import (
	"fmt"
	"strconv"
	"strings"
)

// ScrollOffset is a container's scroll position.
type ScrollOffset struct {
	Top  int
	Left int
}

// FocusState identifies the focused element and its text-selection range.
type FocusState struct {
	Identity string
	SelStart int
	SelEnd   int
}

// InputState captures one form control's user-visible state, keyed by the
// same identity scheme as FocusState.
type InputState struct {
	Identity string
	Kind     string // "value", "checked" or "selected"
	Value    string
	Checked  bool
	Selected []string
}

// Snapshot is the transient UI state preserved across one content swap:
// scroll offsets, focused-element identity plus caret range, and form
// control values. It is created immediately before a non-append load and
// consumed immediately after the new content is installed; it is never
// persisted beyond one load cycle.
type Snapshot struct {
	Scroll ScrollOffset
	Focus  *FocusState
	Inputs []InputState
}

// SaveAll captures the preserved UI state for root. doc supplies the
// active element; focus is recorded only when it lies inside root.
func SaveAll(root Element, doc Document) Snapshot {
	var snap Snapshot

	top, left := root.ScrollOffset()
	snap.Scroll = ScrollOffset{Top: top, Left: left}

	if active := doc.ActiveElement(); active != nil && contains(root, active) {
		if id := identityOf(root, active); id != "" {
			start, end := active.SelectionRange()
			snap.Focus = &FocusState{Identity: id, SelStart: start, SelEnd: end}
		}
	}

	for _, el := range root.Query("input, select, textarea") {
		id := identityOf(root, el)
		if id == "" {
			continue
		}
		snap.Inputs = append(snap.Inputs, captureInput(id, el))
	}

	return snap
}

// RestoreAll re-applies a snapshot to root. The order is load-bearing:
// scroll first, then input values (skipping the currently focused element
// so a typing user is never fought), then focus and selection last -
// restoring focus before values can aim focus at an element a value
// restoration is about to disturb.
func RestoreAll(root Element, doc Document, snap Snapshot) {
	root.SetScrollOffset(snap.Scroll.Top, snap.Scroll.Left)

	active := doc.ActiveElement()
	for _, in := range snap.Inputs {
		el := resolveIdentity(root, in.Identity)
		if el == nil || el == active {
			continue
		}
		applyInput(el, in)
	}

	if snap.Focus != nil {
		if el := resolveIdentity(root, snap.Focus.Identity); el != nil {
			el.Focus()
			el.SetSelectionRange(snap.Focus.SelStart, snap.Focus.SelEnd)
		}
	}
}

func captureInput(identity string, el Element) InputState {
	switch controlKind(el) {
	case "checked":
		return InputState{Identity: identity, Kind: "checked", Checked: el.Checked()}
	case "selected":
		return InputState{Identity: identity, Kind: "selected", Selected: el.SelectedValues()}
	default:
		return InputState{Identity: identity, Kind: "value", Value: el.Value()}
	}
}

func applyInput(el Element, in InputState) {
	switch in.Kind {
	case "checked":
		el.SetChecked(in.Checked)
	case "selected":
		el.SetSelectedValues(in.Selected)
	default:
		el.SetValue(in.Value)
	}
}

func controlKind(el Element) string {
	if el.Tag() == "select" {
		return "selected"
	}
	if t, _ := el.Attr("type"); t == "checkbox" || t == "radio" {
		return "checked"
	}
	return "value"
}

// identityOf derives a stable identity for el within root: the element id
// when present, else a name-attribute selector, else a best-effort
// positional key (tag plus index among same-tag descendants of root).
// Positional keys survive a swap only when the new content keeps the same
// shape, which is the common case for a refreshed list.
func identityOf(root Element, el Element) string {
	if id, ok := el.Attr("id"); ok && id != "" {
		return "#" + id
	}
	if name, ok := el.Attr("name"); ok && name != "" {
		return fmt.Sprintf("%s[name=%q]", el.Tag(), name)
	}
	for i, cand := range root.Query(el.Tag()) {
		if cand == el {
			return fmt.Sprintf("%s@%d", el.Tag(), i)
		}
	}
	return ""
}

// resolveIdentity finds the element for an identity produced by
// identityOf, or nil if the new content no longer has it.
func resolveIdentity(root Element, identity string) Element {
	if tag, idx, ok := strings.Cut(identity, "@"); ok {
		n, err := strconv.Atoi(idx)
		if err != nil {
			return nil
		}
		matches := root.Query(tag)
		if n < 0 || n >= len(matches) {
			return nil
		}
		return matches[n]
	}
	matches := root.Query(identity)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// contains reports whether el is a descendant of root.
func contains(root Element, el Element) bool {
	for p := el.Parent(); p != nil; p = p.Parent() {
		if p == root {
			return true
		}
	}
	return false
}
