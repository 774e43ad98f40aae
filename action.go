package livefrag

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// ActionType enumerates the verbs of the side-channel action envelope
// that form and confirm handlers receive from the server.
type ActionType string

const (
	ActionPrepend         ActionType = "prepend"
	ActionAppend          ActionType = "append"
	ActionReplace         ActionType = "replace"
	ActionRemove          ActionType = "remove"
	ActionRefresh         ActionType = "refresh"
	ActionRedirect        ActionType = "redirect"
	ActionReplaceMultiple ActionType = "replace-multiple"
	ActionRemoveMultiple  ActionType = "remove-multiple"
)

// ActionItem is one target/markup pair for replace-multiple.
type ActionItem struct {
	Target string `json:"target"`
	HTML   string `json:"html"`
}

// Action describes the DOM effect a side-channel response requests.
type Action struct {
	Type     ActionType   `json:"type"`
	Target   string       `json:"target,omitempty"`
	Redirect string       `json:"redirect,omitempty"`
	Close    string       `json:"close,omitempty"`
	Fade     bool         `json:"fade,omitempty"`
	Items    []ActionItem `json:"items,omitempty"`
	Targets  []string     `json:"targets,omitempty"`
}

// ActionEnvelope is the side-channel response contract consumed by
// higher-level form/confirm/delete collaborators. The core engine's only
// obligation toward it is exposing GetController and the controller's
// Refresh as primitives; ProcessAction is the reference processor built
// on exactly those.
type ActionEnvelope struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	HTML    string  `json:"html,omitempty"`
	Action  *Action `json:"action,omitempty"`
}

// ParseActionEnvelope decodes a side-channel response body.
func ParseActionEnvelope(data []byte) (*ActionEnvelope, error) {
	var env ActionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelope, err)
	}
	return &env, nil
}

// ProcessAction applies an action envelope to the document: installs or
// removes markup, refreshes controllers, navigates on redirect, and
// surfaces the message as a toast. Newly installed markup gets a bind
// sweep so nested binders activate. Missing targets are reported and
// returned as ErrTargetMissing, never panicked over.
//
// The Close and Fade fields are UI-kit hints for browser hosts (modal
// dismissal, removal animation); the headless engine records no behavior
// for them.
func (r *Root) ProcessAction(env *ActionEnvelope) error {
	if env.Message != "" {
		level := ToastSuccess
		if !env.Success {
			level = ToastError
		}
		r.Toast(level, env.Message)
	}

	if env.Action == nil {
		return nil
	}
	a := env.Action

	switch a.Type {
	case ActionPrepend:
		el, err := r.actionTarget(a)
		if err != nil {
			return err
		}
		el.PrependHTML(env.HTML)
		r.Bind(el)

	case ActionAppend:
		el, err := r.actionTarget(a)
		if err != nil {
			return err
		}
		el.AppendHTML(env.HTML)
		r.Bind(el)

	case ActionReplace:
		el, err := r.actionTarget(a)
		if err != nil {
			return err
		}
		el.SetInnerHTML(env.HTML)
		r.Bind(el)

	case ActionRemove:
		el, err := r.actionTarget(a)
		if err != nil {
			return err
		}
		if c := r.controllerOf(el); c != nil {
			c.Dispose()
		}
		el.Remove()

	case ActionRefresh:
		c := r.GetController(a.Target)
		if c == nil {
			r.log.Warn("livefrag: refresh action target has no controller",
				zap.String("target", a.Target))
			return fmt.Errorf("%w: %q", ErrControllerMissing, a.Target)
		}
		c.Refresh()

	case ActionRedirect:
		r.doc.Navigate(a.Redirect)

	case ActionReplaceMultiple:
		for _, item := range a.Items {
			el := r.doc.QueryOne(item.Target)
			if el == nil {
				r.log.Warn("livefrag: replace-multiple target not found",
					zap.String("target", item.Target))
				continue
			}
			el.SetInnerHTML(item.HTML)
			r.Bind(el)
		}

	case ActionRemoveMultiple:
		for _, target := range a.Targets {
			el := r.doc.QueryOne(target)
			if el == nil {
				continue
			}
			if c := r.controllerOf(el); c != nil {
				c.Dispose()
			}
			el.Remove()
		}

	default:
		return fmt.Errorf("%w: unknown action type %q", ErrEnvelope, a.Type)
	}

	return nil
}

func (r *Root) actionTarget(a *Action) (Element, error) {
	el := r.doc.QueryOne(a.Target)
	if el == nil {
		r.log.Warn("livefrag: action target not found",
			zap.String("type", string(a.Type)),
			zap.String("target", a.Target))
		return nil, fmt.Errorf("%w: %q", ErrTargetMissing, a.Target)
	}
	return el, nil
}
