package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfs-timetable/internal/gtfs"
	"gtfs-timetable/internal/scs"
	"gtfs-timetable/internal/timetable"
)

func trip(id string, start int, stops ...string) gtfs.TripStops {
	ts := gtfs.TripStops{Trip: gtfs.Trip{TripID: id, RouteID: "R1", ServiceID: "WK", DirectionID: "0", Headsign: "Three"}}
	for i, s := range stops {
		sec := start + i*300
		ts.StopTimes = append(ts.StopTimes, gtfs.StopTime{
			StopSequence: i + 1, StopID: s,
			ArrivalSec: sec, DepartureSec: sec, HasArrival: true, HasDeparture: true,
		})
	}
	return ts
}

func TestSubject(t *testing.T) {
	tests := []struct {
		key  gtfs.GroupKey
		want string
	}{
		{gtfs.GroupKey{RouteID: "U1", ServiceID: "WK", DirectionID: "0"}, "timetables.U1.WK.0"},
		{gtfs.GroupKey{RouteID: "13A", ServiceID: "sat.sun", DirectionID: ""}, "timetables.13A.sat_sun._"},
		{gtfs.GroupKey{RouteID: " N 6 ", ServiceID: "*", DirectionID: "1"}, "timetables.N_6._.1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Subject("timetables", tt.key))
	}
}

func TestNewTimetableMessage(t *testing.T) {
	key := gtfs.GroupKey{RouteID: "R1", ServiceID: "WK", DirectionID: "0"}
	g, err := timetable.Build(key, []gtfs.TripStops{
		trip("t2", 9*3600, "S1", "S3"),
		trip("t1", 8*3600, "S1", "S2", "S3"),
	}, scs.New[string](scs.Budget{}))
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := NewTimetableMessage("build-1", g, at)
	assert.Equal(t, "build-1", msg.BuildID)
	assert.Equal(t, "R1", msg.RouteID)
	assert.False(t, msg.Partial)
	assert.Equal(t, []string{"S1", "S2", "S3"}, msg.Stops)
	require.Len(t, msg.Trips, 2)

	assert.Equal(t, "t1", msg.Trips[0].TripID)
	assert.Equal(t, "08:05:00", msg.Trips[0].Cells[1].Arrival)
	assert.Equal(t, "t2", msg.Trips[1].TripID)
	assert.Nil(t, msg.Trips[1].Cells[1])
	assert.Equal(t, 2, msg.Trips[1].Cells[2].StopSequence)
	assert.Equal(t, "09:05:00", msg.Trips[1].Cells[2].Departure)

	b, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"cells":[{"stopSequence":1,"arrival":"09:00:00","departure":"09:00:00"},null,`)
	assert.NotContains(t, string(b), "warning")
}
