package world

import "github.com/ChuLiYu/roadcrew/pkg/types"

// EntityList is the ordered set of machines standing on one cell.
// It holds identifiers only; the Fleet owns the machines themselves.
//
// A single cursor is shared by every linear scan (First/Next). Scans that
// may run while another scan of the same list is in progress save and
// restore it with Cursor/SetCursor.
type EntityList struct {
	ids    []types.MachineID
	cursor int // index of the last element returned, -1 before First
}

// NewEntityList creates an empty list.
func NewEntityList() *EntityList {
	return &EntityList{cursor: -1}
}

// Add appends id unless it is already present. It always reports true,
// a duplicate is simply not appended twice.
func (l *EntityList) Add(id types.MachineID) bool {
	if l.Contains(id) {
		return true
	}
	l.ids = append(l.ids, id)
	return true
}

// Remove unlinks id. It reports false when id is not in the list.
func (l *EntityList) Remove(id types.MachineID) bool {
	idx := l.indexOf(id)
	if idx < 0 {
		return false
	}
	l.ids = append(l.ids[:idx], l.ids[idx+1:]...)
	// keep the cursor pointing at the element before the next unseen one
	if idx <= l.cursor {
		l.cursor--
	}
	return true
}

// Contains reports whether id is in the list.
func (l *EntityList) Contains(id types.MachineID) bool {
	return l.indexOf(id) >= 0
}

// Len returns the number of occupants.
func (l *EntityList) Len() int {
	return len(l.ids)
}

// IDs returns a copy of the occupants in insertion order.
func (l *EntityList) IDs() []types.MachineID {
	out := make([]types.MachineID, len(l.ids))
	copy(out, l.ids)
	return out
}

// First resets the cursor and returns the head, or false when empty.
func (l *EntityList) First() (types.MachineID, bool) {
	l.cursor = -1
	return l.Next()
}

// Next advances the cursor.
func (l *EntityList) Next() (types.MachineID, bool) {
	if l.cursor+1 >= len(l.ids) {
		l.cursor = len(l.ids)
		return 0, false
	}
	l.cursor++
	return l.ids[l.cursor], true
}

// Cursor returns the scan position for a later SetCursor.
func (l *EntityList) Cursor() int {
	return l.cursor
}

// SetCursor restores a position saved with Cursor.
func (l *EntityList) SetCursor(c int) {
	l.cursor = c
}

// Find scans for the first occupant accepted by match, preserving the
// cursor of any scan already in progress.
func (l *EntityList) Find(match func(types.MachineID) bool) (types.MachineID, bool) {
	saved := l.Cursor()
	defer l.SetCursor(saved)

	for id, ok := l.First(); ok; id, ok = l.Next() {
		if match(id) {
			return id, true
		}
	}
	return 0, false
}

func (l *EntityList) indexOf(id types.MachineID) int {
	for i, cur := range l.ids {
		if cur == id {
			return i
		}
	}
	return -1
}
