// Package layout keeps the order of dashboard widgets.
package layout

import (
	"errors"
	"fmt"
)

var ErrUnknownWidget = errors.New("unknown widget")

// Default is the initial widget order.
var Default = []string{"signal", "ssid", "persistence", "channel", "heap", "uptime", "devices"}

func known(id string) bool {
	for _, w := range Default {
		if w == id {
			return true
		}
	}
	return false
}

// Normalize drops unknown and repeated ids, then appends any widget missing
// from order in its default position.
func Normalize(order []string) []string {
	seen := make(map[string]bool, len(Default))
	out := make([]string, 0, len(Default))
	for _, id := range order {
		if !known(id) || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range Default {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// Move takes dragged out of order and reinserts it at the index target held
// before the removal, the way a widget dropped onto another takes its slot.
func Move(order []string, dragged, target string) ([]string, error) {
	from, to := indexOf(order, dragged), indexOf(order, target)
	if from < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWidget, dragged)
	}
	if to < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWidget, target)
	}

	out := make([]string, 0, len(order))
	out = append(out, order[:from]...)
	out = append(out, order[from+1:]...)

	out = append(out[:to], append([]string{dragged}, out[to:]...)...)
	return out, nil
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}
