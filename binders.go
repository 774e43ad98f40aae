package livefrag

import (
	"strconv"
	"time"

	"go.uber.org/zap"
)

// The DOM contract: attributes elements use to opt in to live behavior.
const (
	// AttrContainer marks a container. Its value is either the literal
	// "true" (URL supplied later via SetURL) or directly the fetch URL.
	AttrContainer = "data-live"

	// AttrInterval requests a periodic auto-refresh, in seconds.
	AttrInterval = "data-live-interval"

	// AttrTarget points a binder at an explicit container selector when
	// it is not nested inside its container.
	AttrTarget = "data-live-target"

	// Stock binder selectors. The attribute value, where meaningful,
	// names the query parameter the element drives.
	AttrSearch = "data-live-search"
	AttrSort   = "data-live-sort"
	AttrFilter = "data-live-filter"
	AttrToggle = "data-live-toggle"
	AttrMore   = "data-live-more"
	AttrPage   = "data-live-page"
	AttrRetry  = "data-live-retry"
)

// RegisterDefaults registers the container binder and the stock input
// binders. Call before the first bind sweep:
//
//	root := livefrag.New(doc, hist, cfg)
//	livefrag.RegisterDefaults(root)
//	root.Bind(nil)
//
// Every stock binder is a thin event listener over the controller
// contract; applications with bespoke widgets register their own binders
// alongside these.
func RegisterDefaults(r *Root) {
	// The container binder must run first so controllers exist before
	// input binders resolve them.
	mustRegister(r, "container", ContainerBinder())
	mustRegister(r, "search", SearchBinder())
	mustRegister(r, "sort", SortBinder())
	mustRegister(r, "filter", FilterBinder())
	mustRegister(r, "toggle", ToggleBinder())
	mustRegister(r, "more", LoadMoreBinder())
	mustRegister(r, "page", NavBinder())
	mustRegister(r, "retry", RetryBinder())
}

func mustRegister(r *Root, name string, b Binder) {
	if err := r.RegisterBinder(name, b); err != nil {
		r.log.Warn("livefrag: default binder not registered", zap.Error(err))
	}
}

// ContainerBinder creates a synchronization controller for every element
// carrying the container attribute, arms the optional refresh interval
// and kicks off the initial load when the attribute supplies a URL.
func ContainerBinder() Binder {
	return Binder{
		Selector: "[" + AttrContainer + "]",
		Bind: func(el Element, r *Root) {
			c := newController(r, el)

			if iv, ok := el.Attr(AttrInterval); ok {
				if secs, err := strconv.Atoi(iv); err == nil && secs > 0 {
					c.setRefreshInterval(time.Duration(secs) * time.Second)
				}
			}

			r.events.Emit(Event{Type: EventBound, Controller: c})

			v, _ := el.Attr(AttrContainer)
			if v == "" || v == "true" {
				// URL arrives later via SetURL; nothing to load yet.
				return
			}
			if err := c.SetURL(v); err != nil {
				return
			}
			// Initial load; the first history write replaces the current
			// entry rather than pushing.
			c.load(loadReplace, true)
		},
	}
}

// SearchBinder drives a text parameter from an input, debounced so
// keystrokes batch into one fetch. The attribute value names the
// parameter (default "search"). Changing the search always returns to
// page one.
func SearchBinder() Binder {
	return Binder{
		Selector: "[" + AttrSearch + "]",
		Bind: func(el Element, r *Root) {
			param := attrOr(el, AttrSearch, "search")
			fire := Debounce(r.cfg.SearchDebounce, func() {
				c := r.ControllerFor(el)
				if c == nil {
					return
				}
				c.UpdateParam(param, el.Value())
				c.ResetPage()
				c.Refresh()
			})
			el.On("input", fire)
		},
	}
}

// SortBinder toggles a sort parameter from a clickable header. The
// attribute value is the sort field; clicking an already-active field
// flips the direction parameter between asc and desc.
func SortBinder() Binder {
	return Binder{
		Selector: "[" + AttrSort + "]",
		Bind: func(el Element, r *Root) {
			field, _ := el.Attr(AttrSort)
			el.On("click", func() {
				c := r.ControllerFor(el)
				if c == nil || field == "" {
					return
				}
				current, _ := c.Param("sort")
				dir, _ := c.Param("dir")
				if current == field && dir != "desc" {
					c.UpdateParam("dir", "desc")
				} else {
					c.UpdateParam("sort", field)
					c.UpdateParam("dir", "asc")
				}
				c.ResetPage()
				c.Refresh()
			})
		},
	}
}

// FilterBinder drives a parameter from a select or similar control on
// change. The attribute value names the parameter; an empty control value
// clears it.
func FilterBinder() Binder {
	return Binder{
		Selector: "[" + AttrFilter + "]",
		Bind: func(el Element, r *Root) {
			param := attrOr(el, AttrFilter, "filter")
			el.On("change", func() {
				c := r.ControllerFor(el)
				if c == nil {
					return
				}
				c.UpdateParam(param, el.Value())
				c.ResetPage()
				c.Refresh()
			})
		},
	}
}

// ToggleBinder drives a boolean parameter from a checkbox-like control:
// checked sets the parameter to "true", unchecked removes it.
func ToggleBinder() Binder {
	return Binder{
		Selector: "[" + AttrToggle + "]",
		Bind: func(el Element, r *Root) {
			param := attrOr(el, AttrToggle, "enabled")
			el.On("change", func() {
				c := r.ControllerFor(el)
				if c == nil {
					return
				}
				if el.Checked() {
					c.UpdateParam(param, "true")
				} else {
					c.UpdateParam(param, "")
				}
				c.ResetPage()
				c.Refresh()
			})
		},
	}
}

// LoadMoreBinder performs an append load on click ("load more"
// pagination).
func LoadMoreBinder() Binder {
	return Binder{
		Selector: "[" + AttrMore + "]",
		Bind: func(el Element, r *Root) {
			el.On("click", func() {
				if c := r.ControllerFor(el); c != nil {
					c.LoadMore()
				}
			})
		},
	}
}

// NavBinder turns pagination and nav links into controller navigations.
// The target URL comes from the element's href, or from the attribute
// value itself when no href is present.
func NavBinder() Binder {
	return Binder{
		Selector: "[" + AttrPage + "]",
		Bind: func(el Element, r *Root) {
			el.On("click", func() {
				c := r.ControllerFor(el)
				if c == nil {
					return
				}
				url, ok := el.Attr("href")
				if !ok || url == "" {
					url, _ = el.Attr(AttrPage)
				}
				if url == "" || url == "true" {
					return
				}
				c.Navigate(url)
			})
		},
	}
}

// RetryBinder wires the retry affordance in a rendered error state back
// to the controller.
func RetryBinder() Binder {
	return Binder{
		Selector: "[" + AttrRetry + "]",
		Bind: func(el Element, r *Root) {
			el.On("click", func() {
				if c := r.ControllerFor(el); c != nil {
					c.Retry()
				}
			})
		},
	}
}

func attrOr(el Element, name, fallback string) string {
	if v, ok := el.Attr(name); ok && v != "" && v != "true" {
		return v
	}
	return fallback
}
