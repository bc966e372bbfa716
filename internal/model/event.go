package model

// EventType tells listeners what happened to the library.
type EventType int

const (
	EventMetadataChanged EventType = iota + 1
	EventBooksAdded
	EventBooksRemoved
	EventFieldCreated
)

func (t EventType) String() string {
	switch t {
	case EventMetadataChanged:
		return "metadata_changed"
	case EventBooksAdded:
		return "books_added"
	case EventBooksRemoved:
		return "books_removed"
	case EventFieldCreated:
		return "field_created"
	}
	return "unknown"
}

// Event is delivered to library listeners after the write that caused it
// released its lock.
type Event struct {
	Type    EventType
	Field   string
	BookIDs []int
}
