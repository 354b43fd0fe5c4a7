package gtfs

import (
	"fmt"
	"strconv"
	"strings"
)

type Trip struct {
	TripID      string
	RouteID     string
	ServiceID   string
	DirectionID string
	Headsign    string
}

type StopTime struct {
	StopSequence int
	StopID       string
	ArrivalSec   int // seconds since midnight (can exceed 24h)
	DepartureSec int // seconds since midnight (can exceed 24h)
	HasArrival   bool
	HasDeparture bool
}

// TripStops is one trip with its stop times sorted by stop_sequence.
type TripStops struct {
	Trip
	StopTimes []StopTime
}

// StopIDs returns the trip's ordered stop ids, repeats included.
func (t TripStops) StopIDs() []string {
	ids := make([]string, len(t.StopTimes))
	for i, st := range t.StopTimes {
		ids[i] = st.StopID
	}
	return ids
}

// FirstDeparture returns the first known departure (or arrival) time of the trip.
func (t TripStops) FirstDeparture() (int, bool) {
	for _, st := range t.StopTimes {
		if st.HasDeparture {
			return st.DepartureSec, true
		}
		if st.HasArrival {
			return st.ArrivalSec, true
		}
	}
	return 0, false
}

// GroupKey identifies the trips rendered into one timetable.
type GroupKey struct {
	RouteID     string
	ServiceID   string
	DirectionID string
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.RouteID, k.ServiceID, k.DirectionID)
}

// ParseDaySeconds parses HH:MM[:SS] possibly with hours >= 24.
func ParseDaySeconds(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 {
			return 0, false
		}
		vals[i] = v
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0, false
	}
	return vals[0]*3600 + vals[1]*60 + vals[2], true
}

// FormatDaySeconds renders seconds since midnight as HH:MM:SS, keeping hours
// past 24 the way GTFS does.
func FormatDaySeconds(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, sec/60%60, sec%60)
}
