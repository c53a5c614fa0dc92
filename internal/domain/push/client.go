package push

import "context"

// Message is one outbound push notification.
type Message struct {
	ChatID int64
	Title  string
	Body   string
	// Metadata carries routing hints for the receiving client,
	// e.g. slot id, reason kind and sender id.
	Metadata map[string]string
}

// Client defines an interface for delivering push notifications.
// This decouples the dispatch logic from the concrete transport library.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
