package stream

import (
	"log/slog"
	"sync"

	"github.com/nominal-io/connect/metric"
	"github.com/nominal-io/connect/pkg/buffer"
)

// Store holds the per-stream telemetry buffers and routes drained
// messages into them. Buffers are created lazily on first sight of a
// recognized stream id and bounded by capacityFor; when full, the oldest
// record is evicted to admit the newest.
type Store struct {
	handoff <-chan Data
	// recognized maps scalar stream ids (typically the configured plot
	// stream ids) to true. FlightPositionStream is always recognized.
	recognized map[string]bool
	logger     *slog.Logger
	metrics    *metric.Metrics

	mu      sync.Mutex
	buffers map[string]buffer.Buffer[Record]
}

// StoreDeps carries the Store's collaborators.
type StoreDeps struct {
	Handoff    <-chan Data
	Recognized map[string]bool
	Logger     *slog.Logger
	Metrics    *metric.Metrics
}

// NewStore creates an empty store.
func NewStore(deps StoreDeps) *Store {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "stream.store")
	}
	recognized := deps.Recognized
	if recognized == nil {
		recognized = map[string]bool{}
	}
	return &Store{
		handoff:    deps.Handoff,
		recognized: recognized,
		logger:     logger,
		metrics:    deps.Metrics,
		buffers:    make(map[string]buffer.Buffer[Record]),
	}
}

// DrainAndRoute moves every message currently queued on the hand-off
// channel into its stream buffer and returns the number routed. It never
// blocks: an empty channel yields zero. Messages with an unrecognized
// stream id are dropped with a log line.
func (s *Store) DrainAndRoute() int {
	routed := 0
	for {
		select {
		case d := <-s.handoff:
			if s.route(d) {
				routed++
			}
		default:
			return routed
		}
	}
}

func (s *Store) route(d Data) bool {
	if d.StreamID != FlightPositionStream && !s.recognized[d.StreamID] {
		s.logger.Debug("Dropping message for unrecognized stream", "stream_id", d.StreamID)
		if s.metrics != nil {
			s.metrics.RecordTelemetryDropped("unknown_stream")
		}
		return false
	}

	s.mu.Lock()
	buf, ok := s.buffers[d.StreamID]
	if !ok {
		var err error
		buf, err = buffer.NewCircular[Record](capacityFor(d.StreamID),
			buffer.WithOverflowPolicy[Record](buffer.DropOldest),
		)
		if err != nil {
			s.mu.Unlock()
			s.logger.Error("Buffer creation failed", "stream_id", d.StreamID, "error", err)
			return false
		}
		s.buffers[d.StreamID] = buf
	}
	s.mu.Unlock()

	if err := buf.Write(recordFor(d)); err != nil {
		s.logger.Warn("Buffer write failed", "stream_id", d.StreamID, "error", err)
		return false
	}
	if s.metrics != nil {
		s.metrics.RecordStreamPoints(d.StreamID, buf.Size())
	}
	return true
}

// Snapshot returns the buffered records for a stream, oldest first,
// without consuming them. Returns nil for an unknown stream.
func (s *Store) Snapshot(streamID string) []Record {
	s.mu.Lock()
	buf, ok := s.buffers[streamID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return buf.Snapshot()
}

// Snapshots returns every stream's buffered records, oldest first.
func (s *Store) Snapshots() map[string][]Record {
	s.mu.Lock()
	bufs := make(map[string]buffer.Buffer[Record], len(s.buffers))
	for id, buf := range s.buffers {
		bufs[id] = buf
	}
	s.mu.Unlock()

	out := make(map[string][]Record, len(bufs))
	for id, buf := range bufs {
		out[id] = buf.Snapshot()
	}
	return out
}

// StreamIDs returns the ids of all streams seen since the last Clear.
func (s *Store) StreamIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.buffers))
	for id := range s.buffers {
		ids = append(ids, id)
	}
	return ids
}

// Size returns the number of records buffered for a stream.
func (s *Store) Size(streamID string) int {
	s.mu.Lock()
	buf, ok := s.buffers[streamID]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return buf.Size()
}

// Clear discards every stream buffer.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.buffers {
		if s.metrics != nil {
			s.metrics.RecordStreamPoints(id, 0)
		}
		delete(s.buffers, id)
	}
}
