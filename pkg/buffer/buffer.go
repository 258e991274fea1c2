// Package buffer provides a generic, thread-safe circular buffer with
// configurable overflow policies.
//
// The buffer is fixed-capacity: once full, the overflow policy decides
// whether the oldest item is evicted (DropOldest) or the new item is
// discarded (DropNewest). Statistics are always collected for
// observability; Prometheus metrics can be enabled via WithMetrics().
package buffer

// Buffer represents a generic bounded buffer parameterized by item type T.
type Buffer[T any] interface {
	// Write adds an item to the buffer. Behavior when full depends on
	// the overflow policy.
	Write(item T) error

	// Read retrieves and removes the oldest item from the buffer.
	// Returns the zero value and false if the buffer is empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items, oldest first.
	ReadBatch(max int) []T

	// Peek retrieves the oldest item without removing it.
	Peek() (T, bool)

	// Snapshot returns a copy of the buffered items in insertion order,
	// oldest first, without removing them.
	Snapshot() []T

	// Size returns the current number of items in the buffer.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// IsFull returns true if the buffer is at maximum capacity.
	IsFull() bool

	// IsEmpty returns true if the buffer contains no items.
	IsEmpty() bool

	// Clear removes all items from the buffer.
	Clear()

	// Stats returns buffer statistics (always available for observability).
	Stats() *Statistics

	// Close shuts down the buffer and releases any resources.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with the item that was dropped due to overflow.
type DropCallback[T any] func(item T)

// NewCircular creates a new circular buffer with the specified capacity
// and options. Returns an error if metrics registration fails when
// metrics are requested.
func NewCircular[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircular(capacity, opts)
}
