package syncer

import "errors"

// Source says what fired a trigger.
type Source string

const (
	SourceReconnect Source = "reconnect-signal"
	SourceExplicit  Source = "explicit-message"
)

// ErrUnknownTag is returned for a trigger tag that names no category.
var ErrUnknownTag = errors.New("unknown sync tag")

// Trigger asks the coordinator to drain one category (Tag set) or all of them.
type Trigger struct {
	Source Source `json:"source"`
	Tag    string `json:"tag,omitempty"`
}

// Report summarizes one category drain.
type Report struct {
	Category  string `json:"category"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}
