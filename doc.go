// Package connect is a script/process integration engine. It sits between
// worker scripts and a display layer, owning everything that is not
// rendering:
//
// Streaming side:
//   - Worker lifecycle: streaming scripts are spawned as child processes,
//     supervised with non-blocking liveness polling, and killed as a set
//     when the session stops
//   - Telemetry ingestion: workers publish JSON telemetry over NATS; a
//     listener consumes it into a bounded hand-off channel and a per-tick
//     drain routes it into per-stream circular buffers with FIFO eviction
//
// Discrete side:
//   - One-shot scripts run synchronously with optional function selection
//     and UI state on stdin; the last non-empty stdout line is classified
//     as a structured table or a plain scalar and stored per script
//
// The engine package ties these together behind a single facade;
// cmd/connectd hosts it as a daemon driven by a fixed tick.
package connect
