package livefrag

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Toast levels.
const (
	ToastSuccess = "success"
	ToastError   = "error"
	ToastWarning = "warning"
	ToastInfo    = "info"
)

// ToastContainer returns the container toasts append into. The toast
// feature injects it automatically when the document has no #toasts
// element; add it to the page yourself to control placement.
func ToastContainer() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div id="toasts" class="toast-container"></div>`)
		return err
	})
}

// RenderToast renders a single toast. Level and message are escaped, so
// server-supplied action messages are safe to pass through.
//
// The data-auto-dismiss attribute is a hint for the host's styling layer;
// the headless engine does not remove toasts on its own.
func RenderToast(level, message string) string {
	return `<div class="toast toast-` + Escape(level) + `" data-auto-dismiss="3000">` +
		Escape(message) + `</div>`
}

// ToastFeature returns the feature that installs toast notifications on
// the Root. Registration order follows the usual sequence - features
// before the first bind sweep:
//
//	root.RegisterFeature("toasts", livefrag.ToastFeature())
//	root.Bind(nil)
//	root.Toast(livefrag.ToastSuccess, "Saved!")
//
// The feature also observes load-error lifecycle events and surfaces them
// as error toasts.
func ToastFeature() Feature {
	return Feature{
		Init: func(r *Root) {
			doc := r.Document()
			if doc.QueryOne("#toasts") == nil {
				doc.Root().AppendHTML(renderToString(ToastContainer()))
			}
			r.SetToastFunc(func(level, message string) {
				if tc := doc.QueryOne("#toasts"); tc != nil {
					tc.AppendHTML(RenderToast(level, message))
				}
			})
			r.Events().On(EventLoadError, func(ev Event) {
				r.Toast(ToastError, "Content failed to load.")
			})
		},
	}
}
