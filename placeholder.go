package livefrag

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Skeleton returns the placeholder shown in a freshly bound, content-free
// container while its first load is in flight. Containers that already
// hold content never get a skeleton.
//
// Style the classes to taste; the aria-busy attribute keeps assistive
// technology informed.
func Skeleton() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w,
			`<div class="live-skeleton" aria-busy="true">`+
				`<div class="live-skeleton-line"></div>`+
				`<div class="live-skeleton-line"></div>`+
				`<div class="live-skeleton-line live-skeleton-line-short"></div>`+
				`</div>`)
		return err
	})
}

// ErrorState returns the inline error rendered when the retry ceiling is
// exceeded. The embedded button carries the data-live-retry attribute, so
// the next bind sweep wires it to the controller's manual retry.
func ErrorState(message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w,
			`<div class="live-error" role="alert">`+
				`<p>`+Escape(message)+`</p>`+
				`<button type="button" `+AttrRetry+`>Retry</button>`+
				`</div>`)
		return err
	})
}

// renderToString renders a templ component to a string. The engine's own
// markup (skeletons, error states, toasts) is small, so buffering is fine.
func renderToString(c templ.Component) string {
	var sb strings.Builder
	if err := c.Render(context.Background(), &sb); err != nil {
		return ""
	}
	return sb.String()
}
