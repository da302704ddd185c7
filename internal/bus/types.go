package bus

import (
	"context"
	"time"
)

// InboundMessage is one raw fragment received from a transport adapter,
// before debouncing.
type InboundMessage struct {
	SessionKey    string            `json:"session_key"`
	Text          string            `json:"text"`
	ArrivalTime   time.Time         `json:"arrival_time"`
	SourceChannel string            `json:"source_channel,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Turn is one combined, debounced unit of user input. Fragments are joined in
// arrival order; the aggregator guarantees each fragment belongs to exactly
// one turn.
type Turn struct {
	ID            string    `json:"id"`
	SessionKey    string    `json:"session_key"`
	Text          string    `json:"text"`
	Fragments     []string  `json:"fragments"`
	SourceChannel string    `json:"source_channel,omitempty"`
	FirstArrival  time.Time `json:"first_arrival"`
	LastArrival   time.Time `json:"last_arrival"`
}

// Identity is a resolved user identity from the external directory.
type Identity struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Document string `json:"document,omitempty"`
	Kind     string `json:"kind,omitempty"` // e.g. "student", "staff"
}

// ResponseMetadata travels with every outbound response so transport
// adapters can annotate or route replies.
type ResponseMetadata struct {
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Tier       string  `json:"tier,omitempty"`
	Escalated  bool    `json:"escalated,omitempty"`
}

// Response is an outbound reply for one session.
type Response struct {
	SessionKey string           `json:"session_key"`
	Text       string           `json:"text"`
	Metadata   ResponseMetadata `json:"metadata"`
}

// Emitter delivers responses to the outbound transport. The engine does not
// retry delivery failures; the error is surfaced to the caller/adapter.
type Emitter interface {
	Emit(ctx context.Context, resp Response) error
}
