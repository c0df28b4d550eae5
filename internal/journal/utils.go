package journal

// ============================================================================
// Journal Utility Functions
// Responsibility: read-side helpers used by the CLI
// ============================================================================

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// errStop ends a Replay early without reporting an error.
var errStop = errors.New("stop")

// LastEvent returns the last valid event of the file, or nil when the
// file holds none. Corrupted trailing records are ignored.
func LastEvent(path string) (*Event, error) {
	var last *Event
	err := Replay(path, func(e Event) error {
		ev := e
		last = &ev
		return nil
	})
	if err != nil && last == nil {
		return nil, err
	}
	return last, nil
}

// Summary aggregates a journal file.
type Summary struct {
	Events     int               `json:"events"`
	Sessions   []string          `json:"sessions"`
	ByType     map[EventType]int `json:"by_type"`
	Completed  map[string]int    `json:"completed"`  // by job kind
	Transforms map[string]int    `json:"transforms"` // by resulting variant
	LastSeq    uint64            `json:"last_seq"`
	LastTick   uint64            `json:"last_tick"`
}

// Summarize replays path and aggregates its events.
func Summarize(path string) (*Summary, error) {
	s := &Summary{
		ByType:     make(map[EventType]int),
		Completed:  make(map[string]int),
		Transforms: make(map[string]int),
	}
	seen := make(map[string]bool)

	err := Replay(path, func(e Event) error {
		s.Events++
		s.ByType[e.Type]++
		s.LastSeq = e.Seq
		if e.Tick > s.LastTick {
			s.LastTick = e.Tick
		}
		if !seen[e.Session] {
			seen[e.Session] = true
			s.Sessions = append(s.Sessions, e.Session)
		}
		switch e.Type {
		case EventCompleted:
			if e.Job != nil {
				s.Completed[e.Job.Kind]++
			}
		case EventTransform:
			if e.Cell != nil {
				s.Transforms[e.Cell.To]++
			}
		}
		return nil
	})
	if err != nil {
		return s, fmt.Errorf("summarize %s: %w", path, err)
	}
	return s, nil
}

// Dump writes one human readable line per event, stopping after limit
// events when limit is positive.
func Dump(path string, w io.Writer, limit int) error {
	n := 0
	err := Replay(path, func(e Event) error {
		if limit > 0 && n >= limit {
			return errStop
		}
		n++
		_, err := fmt.Fprintln(w, FormatEvent(e))
		return err
	})
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

// FormatEvent renders an event on one line.
func FormatEvent(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d tick=%d %s", e.Seq, e.Tick, e.Type)
	if e.Machine != 0 {
		fmt.Fprintf(&b, " %s#%d", e.Archetype, e.Machine)
	}
	if e.Job != nil {
		fmt.Fprintf(&b, " %s (%d,%d)", e.Job.Kind, e.Job.I, e.Job.J)
	}
	if e.Cell != nil {
		fmt.Fprintf(&b, " (%d,%d) %s->%s", e.Cell.I, e.Cell.J, e.Cell.From, e.Cell.To)
	}
	if e.Type == EventSession {
		fmt.Fprintf(&b, " %s", e.Session)
	}
	return b.String()
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
