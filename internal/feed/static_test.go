package feed

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfs-timetable/internal/gtfs"
)

var fixture = map[string]string{
	"agency.txt": `agency_id,agency_name,agency_url,agency_timezone
A1,Test Transit,https://example.com,Europe/Vienna
`,
	"routes.txt": `route_id,agency_id,route_short_name,route_long_name,route_type
R1,A1,1,Ring,3
R2,A1,2,Cross,3
`,
	"stops.txt": `stop_id,stop_name,stop_lat,stop_lon
S1,One,48.20,16.37
S2,Two,48.21,16.38
S3,Three,48.22,16.39
`,
	"calendar.txt": `service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date
WK,1,1,1,1,1,0,0,20240101,20241231
`,
	"trips.txt": `route_id,service_id,trip_id,trip_headsign,direction_id
R1,WK,t1,Three,0
R1,WK,t2,Three,0
R2,WK,t3,One,1
`,
	"stop_times.txt": `trip_id,arrival_time,departure_time,stop_id,stop_sequence
t1,08:00:00,08:00:00,S1,1
t1,08:10:00,08:10:30,S3,3
t1,,,S2,2
t2,,09:00:00,S1,1
t2,09:10:00,09:10:00,S3,2
t3,10:00:00,10:00:00,S3,1
t3,10:20:00,10:20:00,S1,2
`,
}

func buildZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range fixture {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParse_GroupsTrips(t *testing.T) {
	s, err := Parse(buildZip(t))
	require.NoError(t, err)

	keys, err := s.Groups(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []gtfs.GroupKey{
		{RouteID: "R1", ServiceID: "WK", DirectionID: "0"},
		{RouteID: "R2", ServiceID: "WK", DirectionID: "1"},
	}, keys)

	trips, err := s.TripStops(context.Background(), keys[0])
	require.NoError(t, err)
	require.Len(t, trips, 2)
	byID := map[string]gtfs.TripStops{}
	for _, tr := range trips {
		byID[tr.TripID] = tr
	}
	assert.Equal(t, []string{"S1", "S2", "S3"}, byID["t1"].StopIDs())
	assert.Equal(t, []string{"S1", "S3"}, byID["t2"].StopIDs())
	assert.Equal(t, 8*3600+10*60+30, byID["t1"].StopTimes[2].DepartureSec)
	assert.Equal(t, "Three", byID["t1"].Headsign)
}

func TestParse_KeepsUntimedStops(t *testing.T) {
	s, err := Parse(buildZip(t))
	require.NoError(t, err)
	trips, err := s.TripStops(context.Background(), gtfs.GroupKey{RouteID: "R1", ServiceID: "WK", DirectionID: "0"})
	require.NoError(t, err)

	byID := map[string]gtfs.TripStops{}
	for _, tr := range trips {
		byID[tr.TripID] = tr
	}
	untimed := byID["t1"].StopTimes[1]
	assert.Equal(t, gtfs.StopTime{StopSequence: 2, StopID: "S2"}, untimed)

	first := byID["t2"].StopTimes[0]
	assert.False(t, first.HasArrival)
	assert.True(t, first.HasDeparture)
	assert.Equal(t, 9*3600, first.DepartureSec)
	dep, ok := byID["t2"].FirstDeparture()
	require.True(t, ok)
	assert.Equal(t, 9*3600, dep)
}

func TestParse_MissingStopTimes(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range fixture {
		if name == "stop_times.txt" {
			continue
		}
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	_, err := Parse(buf.Bytes())
	assert.Error(t, err)
}

func TestStatic_RouteFilterAndUnknownGroup(t *testing.T) {
	s, err := Parse(buildZip(t))
	require.NoError(t, err)

	keys, err := s.Groups(context.Background(), []string{"R2"})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "R2", keys[0].RouteID)

	_, err = s.TripStops(context.Background(), gtfs.GroupKey{RouteID: "nope"})
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gtfs.zip")
	require.NoError(t, os.WriteFile(path, buildZip(t), 0o644))
	s, err := LoadFile(path)
	require.NoError(t, err)
	keys, _ := s.Groups(context.Background(), nil)
	assert.Len(t, keys, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)

	_, err = Parse([]byte("not a zip"))
	assert.Error(t, err)
}
