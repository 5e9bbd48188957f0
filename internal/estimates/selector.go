package estimates

import (
	"fmt"
	"strings"
	"time"

	"github.com/sharongu/zipline/internal/quarters"
)

// Selector picks which disclosed quarter is reported on each date
type Selector int

const (
	// Next reports the soonest release on or after the date
	Next Selector = iota + 1
	// Previous reports the latest release on or before the date
	Previous
)

// String returns the selector name
func (s Selector) String() string {
	switch s {
	case Next:
		return "next"
	case Previous:
		return "previous"
	default:
		return "unknown"
	}
}

// ParseSelector accepts "next" or "previous", case-insensitively
func ParseSelector(name string) (Selector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "next":
		return Next, nil
	case "previous", "prev":
		return Previous, nil
	default:
		return 0, fmt.Errorf("unknown selector %q: want next or previous", name)
	}
}

// Valid reports whether s is one of the defined selectors
func (s Selector) Valid() bool {
	return s == Next || s == Previous
}

// policy is the part of quarter selection that differs between selectors
type policy struct {
	// qualifies reports whether a release dated eventDate can be reported on date
	qualifies func(eventDate, date time.Time) bool
	// better reports whether candidate (date a, quarter qa) beats the current pick
	better func(a time.Time, qa quarters.Normalized, b time.Time, qb quarters.Normalized) bool
	// direction is +1 for quarters ahead, -1 for quarters behind
	direction int
}

func (s Selector) policy() policy {
	if s == Previous {
		return policy{
			qualifies: func(eventDate, date time.Time) bool { return !eventDate.After(date) },
			better: func(a time.Time, qa quarters.Normalized, b time.Time, qb quarters.Normalized) bool {
				return a.After(b) || (a.Equal(b) && qa > qb)
			},
			direction: -1,
		}
	}
	return policy{
		qualifies: func(eventDate, date time.Time) bool { return !eventDate.Before(date) },
		better: func(a time.Time, qa quarters.Normalized, b time.Time, qb quarters.Normalized) bool {
			return a.Before(b) || (a.Equal(b) && qa < qb)
		},
		direction: 1,
	}
}

// Requested is the quarter reported for one (date, asset)
type Requested struct {
	Present bool
	// Reference is the quarter whose release was selected
	Reference quarters.Normalized
	// Shifted is Reference moved numQuarters-1 in the selector's direction
	Shifted quarters.Normalized
	// EventDate is the release date of Reference as known on the date
	EventDate time.Time
}

// SelectQuarters returns a [date][asset] grid of requested quarters. Dates
// with no qualifying release for an asset are left absent.
func SelectQuarters(snap *Snapshot, selector Selector, numQuarters int) [][]Requested {
	p := selector.policy()
	offset := p.direction * (numQuarters - 1)

	dates := snap.Dates()
	out := make([][]Requested, len(dates))
	for i, date := range dates {
		out[i] = make([]Requested, len(snap.Assets()))
		for j := range snap.Assets() {
			var pick Requested
			for _, q := range snap.Quarters(j) {
				cell := snap.Cell(i, j, q)
				if !cell.Present || !p.qualifies(cell.EventDate, date) {
					continue
				}
				if !pick.Present || p.better(cell.EventDate, q, pick.EventDate, pick.Reference) {
					pick = Requested{Present: true, Reference: q, EventDate: cell.EventDate}
				}
			}
			if pick.Present {
				pick.Shifted = pick.Reference.Add(offset)
			}
			out[i][j] = pick
		}
	}
	return out
}
