package memdom

import "strings"

// The selector engine covers the subset the engine's binders and tests
// use: compound simple selectors (tag, #id, .class, [attr], [attr=value],
// conjoined without whitespace) and comma-separated lists. No combinators.

type attrCond struct {
	name     string
	value    string
	hasValue bool
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrCond
}

// matchesList reports whether el matches any selector in a
// comma-separated list. Caller holds doc.mu.
func matchesList(el *Element, selector string) bool {
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if sel, ok := parseCompound(part); ok && matchesCompound(el, sel) {
			return true
		}
	}
	return false
}

func matchesCompound(el *Element, sel compound) bool {
	if sel.tag != "" && sel.tag != el.tag {
		return false
	}
	if sel.id != "" && el.attrs["id"] != sel.id {
		return false
	}
	for _, class := range sel.classes {
		if !hasClass(el.attrs["class"], class) {
			return false
		}
	}
	for _, cond := range sel.attrs {
		v, ok := el.attrs[cond.name]
		if !ok {
			return false
		}
		if cond.hasValue && v != cond.value {
			return false
		}
	}
	return true
}

func hasClass(classAttr, class string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}

func parseCompound(s string) (compound, bool) {
	var sel compound
	i := 0
	n := len(s)

	// Leading tag name.
	start := i
	for i < n && isNameByte(s[i]) {
		i++
	}
	sel.tag = strings.ToLower(s[start:i])

	for i < n {
		switch s[i] {
		case '#':
			i++
			start = i
			for i < n && isNameByte(s[i]) {
				i++
			}
			if start == i {
				return sel, false
			}
			sel.id = s[start:i]
		case '.':
			i++
			start = i
			for i < n && isNameByte(s[i]) {
				i++
			}
			if start == i {
				return sel, false
			}
			sel.classes = append(sel.classes, s[start:i])
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return sel, false
			}
			body := s[i+1 : i+end]
			i += end + 1
			name, value, hasValue := strings.Cut(body, "=")
			name = strings.TrimSpace(name)
			if name == "" {
				return sel, false
			}
			if hasValue {
				value = strings.TrimSpace(value)
				value = strings.Trim(value, `"'`)
			}
			sel.attrs = append(sel.attrs, attrCond{name: name, value: value, hasValue: hasValue})
		default:
			// Unsupported syntax (combinators, pseudo-classes).
			return sel, false
		}
	}
	return sel, true
}

func isNameByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_':
		return true
	}
	return false
}
