package session

import "github.com/mf2hd-design/memoscan2/internal/analysis"

// EventType names the progress events a session streams to its client.
type EventType string

const (
	EventStatus          EventType = "status"
	EventScreenshotReady EventType = "screenshot_ready"
	EventResult          EventType = "result"
	EventSummary         EventType = "summary"
	EventError           EventType = "error"
	EventComplete        EventType = "complete"
)

// Event is one typed progress message. Only the fields relevant to the
// Type are populated; everything else is omitted from the wire form.
type Event struct {
	Type EventType `json:"type"`

	// status, error, complete
	Message string `json:"message,omitempty"`

	// screenshot_ready
	ScreenshotID  string `json:"id,omitempty"`
	ScreenshotURL string `json:"url,omitempty"`

	// result
	Key      string           `json:"key,omitempty"`
	Analysis *analysis.Result `json:"analysis,omitempty"`

	// summary
	Text  string                 `json:"text,omitempty"`
	Quant *analysis.QuantSummary `json:"quant,omitempty"`
}

func statusEvent(msg string) Event { return Event{Type: EventStatus, Message: msg} }

func errorEvent(msg string) Event { return Event{Type: EventError, Message: msg} }
