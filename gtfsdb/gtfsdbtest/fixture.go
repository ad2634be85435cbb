// Package gtfsdbtest builds small static GTFS feeds for tests.
package gtfsdbtest

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// Files maps GTFS file names to CSV contents.
type Files map[string]string

// MinimalFeed has two routes over three stops. Stop S2 is served by T1 and T3
// at stop_sequence 2 and by T2 at stop_sequence 4. T3 runs past midnight.
func MinimalFeed() Files {
	return Files{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"A1,Metro Transit,http://metro.example.com,America/Los_Angeles\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type,route_color\n" +
			"10,A1,10,Capitol Hill,3,FF0000\n" +
			"20,A1,20,Airport Express,3,\n",
		"stops.txt": "stop_id,stop_code,stop_name,stop_lat,stop_lon\n" +
			"S1,1001,Pine St & 3rd Ave,47.6105,-122.3380\n" +
			"S2,1002,Pine St & 9th Ave,47.6145,-122.3300\n" +
			"S3,1003,Broadway & Pine,47.6150,-122.3210\n" +
			"S4,1004,Unserved Stop,47.6200,-122.3100\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"WK,1,1,1,1,1,1,1,20240101,20301231\n",
		"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id\n" +
			"10,WK,T1,Capitol Hill,0\n" +
			"20,WK,T2,Airport,1\n" +
			"10,WK,T3,Capitol Hill,0\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"T1,08:00:00,08:00:00,S1,1\n" +
			"T1,08:10:00,08:10:30,S2,2\n" +
			"T1,08:20:00,08:20:00,S3,3\n" +
			"T2,08:05:00,08:05:00,S3,3\n" +
			"T2,08:15:00,08:15:00,S2,4\n" +
			"T2,08:30:00,08:30:00,S1,5\n" +
			"T3,24:30:00,24:30:00,S1,1\n" +
			"T3,24:40:00,24:40:00,S2,2\n",
	}
}

// Zip encodes files as a GTFS zip archive.
func Zip(t testing.TB, files Files) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for name, contents := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}
