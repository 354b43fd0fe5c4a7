// Package feed serves trip groups straight from a GTFS static zip, for
// running without a database.
package feed

import (
	"archive/zip"
	"bytes"
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	jgtfs "github.com/jamespfennell/gtfs"

	"gtfs-timetable/internal/gtfs"
)

// Static holds every trip of a parsed feed grouped by route, service and
// direction. It is read-only after construction and safe for concurrent use.
type Static struct {
	keys   []gtfs.GroupKey
	groups map[gtfs.GroupKey][]gtfs.TripStops
}

// LoadFile parses the GTFS zip at path.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gtfs zip: %w", err)
	}
	return Parse(data)
}

// Parse parses a GTFS zip held in memory. Trips, routes and services come
// from the feed parser; stop times are read from stop_times.txt directly so
// that stops without arrival and departure times stay in their trips.
func Parse(data []byte) (*Static, error) {
	parsed, err := jgtfs.ParseStatic(data, jgtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("parse gtfs zip: %w", err)
	}
	stopTimes, err := readStopTimes(data)
	if err != nil {
		return nil, err
	}
	s := &Static{groups: make(map[gtfs.GroupKey][]gtfs.TripStops)}
	for i := range parsed.Trips {
		t := &parsed.Trips[i]
		if t.Route == nil || t.Service == nil {
			continue
		}
		ts := gtfs.TripStops{
			Trip: gtfs.Trip{
				TripID:      t.ID,
				RouteID:     t.Route.Id,
				ServiceID:   t.Service.Id,
				DirectionID: directionID(t.DirectionId),
				Headsign:    t.Headsign,
			},
			StopTimes: stopTimes[t.ID],
		}
		key := gtfs.GroupKey{RouteID: ts.RouteID, ServiceID: ts.ServiceID, DirectionID: ts.DirectionID}
		if _, ok := s.groups[key]; !ok {
			s.keys = append(s.keys, key)
		}
		s.groups[key] = append(s.groups[key], ts)
	}
	slices.SortFunc(s.keys, compareKeys)
	return s, nil
}

// readStopTimes returns the stop times of every trip ordered by
// stop_sequence. Empty times are kept with HasArrival / HasDeparture unset,
// the same way the database source reads them.
func readStopTimes(data []byte) (map[string][]gtfs.StopTime, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open gtfs zip: %w", err)
	}
	var f *zip.File
	for _, zf := range zr.File {
		if strings.EqualFold(zf.Name, "stop_times.txt") {
			f = zf
			break
		}
	}
	if f == nil {
		return nil, errors.New("no stop_times.txt in gtfs zip")
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1
	head, err := csvr.Read()
	if err != nil {
		return nil, fmt.Errorf("read stop_times.txt header: %w", err)
	}
	idx := func(col string) int {
		for i, h := range head {
			if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), col) {
				return i
			}
		}
		return -1
	}
	tID, sID, sq := idx("trip_id"), idx("stop_id"), idx("stop_sequence")
	arr, dep := idx("arrival_time"), idx("departure_time")
	if tID < 0 || sID < 0 || sq < 0 {
		return nil, errors.New("stop_times.txt needs trip_id, stop_id and stop_sequence")
	}
	field := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make(map[string][]gtfs.StopTime)
	for {
		row, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stop_times.txt: %w", err)
		}
		seq, err := strconv.Atoi(field(row, sq))
		if err != nil {
			continue
		}
		st := gtfs.StopTime{StopSequence: seq, StopID: field(row, sID)}
		st.ArrivalSec, st.HasArrival = gtfs.ParseDaySeconds(field(row, arr))
		st.DepartureSec, st.HasDeparture = gtfs.ParseDaySeconds(field(row, dep))
		trip := field(row, tID)
		out[trip] = append(out[trip], st)
	}
	for _, sts := range out {
		slices.SortStableFunc(sts, func(a, b gtfs.StopTime) int { return cmp.Compare(a.StopSequence, b.StopSequence) })
	}
	return out, nil
}

func directionID(d jgtfs.DirectionID) string {
	switch d {
	case jgtfs.DirectionID_False:
		return "0"
	case jgtfs.DirectionID_True:
		return "1"
	}
	return ""
}

func compareKeys(a, b gtfs.GroupKey) int {
	return cmp.Or(
		cmp.Compare(a.RouteID, b.RouteID),
		cmp.Compare(a.ServiceID, b.ServiceID),
		cmp.Compare(a.DirectionID, b.DirectionID),
	)
}

// Groups lists the groups of the feed, restricted to routes when routes is
// not empty.
func (s *Static) Groups(_ context.Context, routes []string) ([]gtfs.GroupKey, error) {
	if len(routes) == 0 {
		return slices.Clone(s.keys), nil
	}
	var out []gtfs.GroupKey
	for _, k := range s.keys {
		if slices.Contains(routes, k.RouteID) {
			out = append(out, k)
		}
	}
	return out, nil
}

// TripStops returns copies of the trips in the group.
func (s *Static) TripStops(_ context.Context, key gtfs.GroupKey) ([]gtfs.TripStops, error) {
	trips, ok := s.groups[key]
	if !ok {
		return nil, fmt.Errorf("unknown group %s", key)
	}
	out := make([]gtfs.TripStops, len(trips))
	for i, t := range trips {
		out[i] = t
		out[i].StopTimes = slices.Clone(t.StopTimes)
	}
	return out, nil
}
