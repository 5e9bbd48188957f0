package estimates

import (
	"sort"
	"time"

	"github.com/sharongu/zipline/internal/events"
	"github.com/sharongu/zipline/internal/quarters"
)

// SnapshotCell is what was known on one date about one (asset, quarter).
// Values is aligned with events.Events.Fields.
type SnapshotCell struct {
	Present   bool
	EventDate time.Time
	Values    []events.Value
}

// quarterHistory holds one cell per simulation date
type quarterHistory struct {
	cells     []SnapshotCell
	disclosed bool
}

type assetSnapshot struct {
	quarters  []quarters.Normalized
	byQuarter map[quarters.Normalized]*quarterHistory
}

// Snapshot is the point-in-time view of every (date, asset, quarter) the
// events cover. It is immutable once built.
type Snapshot struct {
	dates   []time.Time
	assets  []string
	byAsset []assetSnapshot
}

// BuildSnapshot selects, for each date, the latest event per (asset,
// quarter) whose knowledge timestamp is on or before that date. Events known
// at the same instant resolve by input order, last wins. Fields are taken
// one by one from the latest event carrying a non-null value, so a partial
// revision keeps the other fields it left null; nothing ever carries across
// quarters.
func BuildSnapshot(evs *events.Events, dates []time.Time, assets []string) *Snapshot {
	assetIndex := make(map[string]int, len(assets))
	for j, a := range assets {
		assetIndex[a] = j
	}

	type key struct {
		asset   int
		quarter quarters.Normalized
	}
	groups := make(map[key][]*events.Event)
	for i := range evs.Rows {
		ev := &evs.Rows[i]
		j, ok := assetIndex[ev.Asset]
		if !ok {
			continue
		}
		k := key{asset: j, quarter: ev.Quarter}
		groups[k] = append(groups[k], ev)
	}

	snap := &Snapshot{
		dates:   dates,
		assets:  assets,
		byAsset: make([]assetSnapshot, len(assets)),
	}
	for j := range snap.byAsset {
		snap.byAsset[j].byQuarter = make(map[quarters.Normalized]*quarterHistory)
	}

	for k, group := range groups {
		sort.SliceStable(group, func(a, b int) bool {
			return group[a].Timestamp.Before(group[b].Timestamp)
		})
		history := buildHistory(group, dates, len(evs.Fields))
		as := &snap.byAsset[k.asset]
		as.byQuarter[k.quarter] = history
		as.quarters = append(as.quarters, k.quarter)
	}
	for j := range snap.byAsset {
		qs := snap.byAsset[j].quarters
		sort.Slice(qs, func(a, b int) bool { return qs[a] < qs[b] })
	}

	return snap
}

func buildHistory(group []*events.Event, dates []time.Time, fields int) *quarterHistory {
	h := &quarterHistory{cells: make([]SnapshotCell, len(dates))}

	next := 0
	var prev SnapshotCell
	for i, date := range dates {
		if next == len(group) || group[next].Timestamp.After(date) {
			h.cells[i] = prev
			continue
		}

		// fold every event that became known since the previous date, field
		// by field: the last non-null value wins
		cell := SnapshotCell{Present: true, Values: make([]events.Value, fields)}
		if prev.Present {
			copy(cell.Values, prev.Values)
		}
		for ; next < len(group) && !group[next].Timestamp.After(date); next++ {
			ev := group[next]
			for f := 0; f < fields; f++ {
				if !ev.Values[f].IsNull() || cell.Values[f].Kind() == 0 {
					cell.Values[f] = ev.Values[f]
				}
			}
			cell.EventDate = ev.EventDate
		}
		prev = cell
		h.cells[i] = cell
		h.disclosed = true
	}
	return h
}

// Dates returns the simulation dates the snapshot was built over
func (s *Snapshot) Dates() []time.Time { return s.dates }

// Assets returns the asset universe
func (s *Snapshot) Assets() []string { return s.assets }

// Quarters returns the quarters observed for an asset, ascending
func (s *Snapshot) Quarters(asset int) []quarters.Normalized {
	return s.byAsset[asset].quarters
}

// Cell returns the cell for (date, asset, quarter). Quarters never observed
// for the asset read as absent.
func (s *Snapshot) Cell(date, asset int, q quarters.Normalized) SnapshotCell {
	h, ok := s.byAsset[asset].byQuarter[q]
	if !ok {
		return SnapshotCell{}
	}
	return h.cells[date]
}

// Disclosed reports whether any event for (asset, quarter) became known
// within the date range.
func (s *Snapshot) Disclosed(asset int, q quarters.Normalized) bool {
	h, ok := s.byAsset[asset].byQuarter[q]
	return ok && h.disclosed
}
