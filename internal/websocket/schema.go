package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventProgress Event = "progress"
	EventDone     Event = "done"
	EventPong     Event = "pong"
)

// ProgressResponse carries one job progress snapshot to the client.
// Payload is the JSON event published by the pipeline.
type ProgressResponse struct {
	Event   Event       `json:"event"`
	Payload interface{} `json:"payload"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
