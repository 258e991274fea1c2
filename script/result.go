// Package script runs one-shot worker scripts, classifies their terminal
// output, and stores the results. It also spawns long-running streaming
// workers for supervision elsewhere.
package script

import (
	"encoding/json"
	"sync"
)

// Result is a script's terminal output: either a Scalar line of text or
// a structured Table. Each run unconditionally replaces the prior result
// under its key, whatever the previous variant was.
type Result interface {
	isResult()
}

// Scalar is a plain text result, shown verbatim.
type Scalar string

func (Scalar) isResult() {}

// Table is a structured tabular result.
type Table struct {
	Columns []string
	Rows    [][]string
}

func (Table) isResult() {}

// tablePayload is the wire form of a structured result line.
type tablePayload struct {
	Columns []string    `json:"columns"`
	Data    [][]*string `json:"data"`
	Error   *string     `json:"error"`
}

// classify interprets a script's result line. A line that parses as a
// table payload with an error field yields the error text as a Scalar; a
// well-formed payload yields a Table with null cells defaulted to empty
// strings; anything else is the raw line as a Scalar.
func classify(line string) Result {
	var p tablePayload
	if err := json.Unmarshal([]byte(line), &p); err != nil || p.Columns == nil || p.Data == nil {
		// Columns and data are both required for a structured payload;
		// anything short of that is plain text.
		return Scalar(line)
	}
	if p.Error != nil {
		return Scalar(*p.Error)
	}

	rows := make([][]string, len(p.Data))
	for i, row := range p.Data {
		cells := make([]string, len(row))
		for j, cell := range row {
			if cell != nil {
				cells[j] = *cell
			}
		}
		rows[i] = cells
	}
	return Table{Columns: p.Columns, Rows: rows}
}

// ResultStore holds the latest result per key. Keys are the script name,
// or "name_function" when a function was invoked.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]Result
}

// NewResultStore creates an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]Result)}
}

// Set stores a result, replacing any prior value for the key.
func (s *ResultStore) Set(key string, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = r
}

// Get returns the result for a key.
func (s *ResultStore) Get(key string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[key]
	return r, ok
}

// Snapshot returns a copy of all stored results.
func (s *ResultStore) Snapshot() map[string]Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Result, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// Clear discards all stored results.
func (s *ResultStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = make(map[string]Result)
}
