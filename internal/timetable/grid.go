package timetable

import (
	"cmp"
	"fmt"
	"slices"

	"gtfs-timetable/internal/align"
	"gtfs-timetable/internal/gtfs"
	"gtfs-timetable/internal/scs"
)

// Grid is the timetable of one group: a row per supersequence position and a
// column per trip. Reads and edits translate grid coordinates through the
// same mappings used to fill it.
type Grid struct {
	Key     gtfs.GroupKey
	Stops   []string // row -> stop id
	Partial bool
	Warning string
	Stats   scs.Stats

	trips    []gtfs.TripStops
	mappings []align.Mapping
	inverse  [][]int // column -> row -> local position or -1
}

// Build validates trips, orders them by first departure and trip id, and
// aligns their stop sequences. The caller's trips are copied, never modified.
func Build(key gtfs.GroupKey, trips []gtfs.TripStops, engine *scs.Engine[string]) (*Grid, error) {
	if err := validateTrips(trips); err != nil {
		return nil, err
	}
	cols := make([]gtfs.TripStops, len(trips))
	for i, t := range trips {
		cols[i] = t
		cols[i].StopTimes = slices.Clone(t.StopTimes)
	}
	slices.SortStableFunc(cols, compareTrips)

	seqs := make([][]string, len(cols))
	for i, t := range cols {
		seqs[i] = t.StopIDs()
	}
	a, err := AlignOrFallback(engine, seqs)
	if err != nil {
		return nil, fmt.Errorf("align %s: %w", key, err)
	}

	g := &Grid{
		Key:      key,
		Stops:    a.Supersequence,
		Partial:  a.Partial,
		Warning:  a.Warning,
		Stats:    a.Stats,
		trips:    cols,
		mappings: make([]align.Mapping, len(cols)),
		inverse:  make([][]int, len(cols)),
	}
	for i := range cols {
		m := a.Alignments[i]
		if err := align.Validate(m, a.Supersequence, seqs[i], engine.Equal); err != nil {
			return nil, fmt.Errorf("align %s trip %s: %w", key, cols[i].TripID, err)
		}
		g.mappings[i] = m
		g.inverse[i] = m.Inverse(len(a.Supersequence))
	}
	return g, nil
}

func validateTrips(trips []gtfs.TripStops) error {
	seen := make(map[string]struct{}, len(trips))
	for _, t := range trips {
		if t.TripID == "" {
			return fmt.Errorf("%w: trip with empty id", ErrInvalidInput)
		}
		if _, dup := seen[t.TripID]; dup {
			return fmt.Errorf("%w: duplicate trip %q", ErrInvalidInput, t.TripID)
		}
		seen[t.TripID] = struct{}{}
		for i, st := range t.StopTimes {
			if st.StopID == "" {
				return fmt.Errorf("%w: trip %q has an empty stop id at position %d", ErrInvalidInput, t.TripID, i)
			}
			if i > 0 && st.StopSequence <= t.StopTimes[i-1].StopSequence {
				return fmt.Errorf("%w: trip %q stop_sequence %d does not follow %d", ErrInvalidInput, t.TripID, st.StopSequence, t.StopTimes[i-1].StopSequence)
			}
		}
	}
	return nil
}

// compareTrips orders timed trips by first departure, untimed trips last, and
// breaks ties by trip id.
func compareTrips(a, b gtfs.TripStops) int {
	da, okA := a.FirstDeparture()
	db, okB := b.FirstDeparture()
	switch {
	case okA && !okB:
		return -1
	case !okA && okB:
		return 1
	case okA && okB && da != db:
		return cmp.Compare(da, db)
	}
	return cmp.Compare(a.TripID, b.TripID)
}

func (g *Grid) Rows() int { return len(g.Stops) }

func (g *Grid) Cols() int { return len(g.trips) }

// Trip returns the trip shown in column col.
func (g *Grid) Trip(col int) gtfs.Trip { return g.trips[col].Trip }

// Mapping returns the local-to-row mapping of column col.
func (g *Grid) Mapping(col int) align.Mapping { return g.mappings[col] }

// Locate translates a grid cell to the trip and its local stop position. ok is
// false when the trip does not serve that row, which is not an error.
func (g *Grid) Locate(row, col int) (tripID string, local int, ok bool) {
	if col < 0 || col >= len(g.trips) || row < 0 || row >= len(g.Stops) {
		return "", -1, false
	}
	local = g.inverse[col][row]
	if local < 0 {
		return g.trips[col].TripID, -1, false
	}
	return g.trips[col].TripID, local, true
}

// Cell returns the stop time shown at row, col.
func (g *Grid) Cell(row, col int) (gtfs.StopTime, bool) {
	_, local, ok := g.Locate(row, col)
	if !ok {
		return gtfs.StopTime{}, false
	}
	return g.trips[col].StopTimes[local], true
}

// SetTimes edits the arrival and departure of the stop time at row, col.
func (g *Grid) SetTimes(row, col, arrivalSec, departureSec int) error {
	if col < 0 || col >= len(g.trips) || row < 0 || row >= len(g.Stops) {
		return fmt.Errorf("%w: cell (%d,%d) outside %dx%d grid", ErrInvalidInput, row, col, len(g.Stops), len(g.trips))
	}
	if arrivalSec < 0 || departureSec < arrivalSec {
		return fmt.Errorf("%w: arrival %d after departure %d", ErrInvalidInput, arrivalSec, departureSec)
	}
	tripID, local, ok := g.Locate(row, col)
	if !ok {
		return fmt.Errorf("%w: trip %s does not serve row %d (%s)", ErrNoStopTime, tripID, row, g.Stops[row])
	}
	st := &g.trips[col].StopTimes[local]
	st.ArrivalSec, st.HasArrival = arrivalSec, true
	st.DepartureSec, st.HasDeparture = departureSec, true
	return nil
}

// TripStops returns a copy of the trip in column col, edits included, in its
// own stop order.
func (g *Grid) TripStops(col int) gtfs.TripStops {
	t := g.trips[col]
	t.StopTimes = slices.Clone(t.StopTimes)
	return t
}
