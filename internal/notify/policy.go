package notify

import "encoding/json"

// FocusPolicy decides which existing window a click reuses.
type FocusPolicy string

const (
	// FocusNavigateAny posts NAVIGATE_TO to any same-origin window and focuses it.
	FocusNavigateAny FocusPolicy = "navigate-any"
	// FocusExactURL focuses only a window already showing the target URL.
	FocusExactURL FocusPolicy = "exact-url"
)

// DefaultActionSet is the ActionSets key used for categories without their own set.
const DefaultActionSet = "default"

// Copy is the text of a success notification.
type Copy struct {
	Title   string
	Body    string
	Tag     string
	Actions []Action
}

// CopyBuilder renders the success copy of one queue category from the
// payload of the entry that was accepted.
type CopyBuilder func(detail json.RawMessage) (Copy, error)

// Policy is the per-front-end notification table.
type Policy struct {
	DefaultTitle    string
	DefaultBody     string
	DefaultTag      string
	DefaultCategory string
	Icon            string
	Badge           string
	Vibrate         []int

	// ActionSets maps a push category to its buttons.
	ActionSets map[string][]Action
	// ClickRoutes maps an action id to the page it opens.
	ClickRoutes map[string]string
	// DismissActions are action ids that only close the notification.
	DismissActions []string
	Focus          FocusPolicy

	// Success maps a queue category to its success copy; absent means silent.
	Success map[string]CopyBuilder
}

func (p Policy) actionsFor(category string) []Action {
	set, ok := p.ActionSets[category]
	if !ok {
		set = p.ActionSets[DefaultActionSet]
	}
	return append([]Action(nil), set...)
}

func (p Policy) isDismiss(action string) bool {
	for _, a := range p.DismissActions {
		if a == action {
			return true
		}
	}
	return false
}
