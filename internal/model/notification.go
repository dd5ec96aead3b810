package model

// Notification is a per-user persisted record delivered live and replayed on
// reconnect. Payload is a template with a single %s blank; the blank is
// filled at send time and the formatted text is what gets stored and
// delivered (Meta keeps the raw fill-in for clients that re-render).
type Notification struct {
	Time    string         `json:"time"`
	Type    string         `json:"type"`
	SubType string         `json:"subType,omitempty"`
	Target  string         `json:"target"`
	State   string         `json:"state,omitempty"`
	Payload string         `json:"payload"`
	Meta    map[string]any `json:"meta,omitempty"`
}
