// Package chat drives the staged answer pipeline and emits its progress as an
// ordered event sequence: expand the question into queries, retrieve and fuse
// supporting passages, then stream the grounded answer.
package chat

// EventKind tags one event of the answer stream.
type EventKind string

// The event kinds, in the order a successful pipeline emits them. status
// events interleave at each stage boundary; thinking events interleave with
// model output; error replaces answer/done when generation fails mid-stream.
const (
	EventStatus   EventKind = "status"
	EventThinking EventKind = "thinking"
	EventQueries  EventKind = "queries"
	EventSources  EventKind = "sources"
	EventAnswer   EventKind = "answer"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// Event is one element of the answer stream. Payload is a string for
// status/thinking/answer/error, a list of query strings for queries, a list
// of fused passages for sources, and nil for done.
type Event struct {
	Kind    EventKind
	Payload any
}
