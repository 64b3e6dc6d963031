package notify

// Action is one button of a notification.
type Action struct {
	ID    string `json:"action"`
	Title string `json:"title"`
	Icon  string `json:"icon,omitempty"`
}

// Data travels with a notification and routes a later click.
type Data struct {
	PrimaryKey any    `json:"primaryKey,omitempty"`
	URL        string `json:"url,omitempty"`
	Type       string `json:"type,omitempty"`
	ArrivedAt  int64  `json:"dateOfArrival,omitempty"`
}

// Request is a user-visible notification waiting to be shown.
type Request struct {
	Category           string   `json:"category"`
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Icon               string   `json:"icon,omitempty"`
	Badge              string   `json:"badge,omitempty"`
	Tag                string   `json:"tag,omitempty"`
	Actions            []Action `json:"actions"`
	Vibrate            []int    `json:"vibrate,omitempty"`
	RequireInteraction bool     `json:"requireInteraction"`
	Data               Data     `json:"data"`
}

// NavigateMessage is posted to a window that should show another page.
type NavigateMessage struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

const MessageNavigateTo = "NAVIGATE_TO"
