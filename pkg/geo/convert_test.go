package geo

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightForPopulationTiers(t *testing.T) {
	cases := []struct {
		pop  int
		want float64
	}{
		{10000, 1},
		{30000, 2},
		{100000, 3},
		{200000, 4},
		{400000, 5},
		{900000, 7},
		{2000000, 10},
		{5000000, 16},
		{9000000, 23},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, WeightForPopulation(tc.pop), "pop=%d", tc.pop)
	}
}

func TestSigmaForWeightTiers(t *testing.T) {
	assert.Equal(t, 5.0, SigmaForWeight(1))
	assert.Equal(t, 10.0, SigmaForWeight(4))
	assert.Equal(t, 12.0, SigmaForWeight(7))
	assert.Equal(t, 14.0, SigmaForWeight(16))
	assert.Equal(t, 16.0, SigmaForWeight(23))
}

func TestConvertCSV(t *testing.T) {
	in := strings.NewReader(
		"Springfield,39.8,-89.6,114000\n" +
			"Metropolis,40.7,-74.0,8400000\n")
	var out bytes.Buffer

	n, err := ConvertCSV(in, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var locs []Location
	require.NoError(t, json.Unmarshal(out.Bytes(), &locs))
	require.Len(t, locs, 2)

	assert.Equal(t, "Springfield", locs[0].Name)
	assert.Equal(t, 3.0, locs[0].Weight)
	assert.Equal(t, 10.0, locs[0].SigmaKm)

	assert.Equal(t, "Metropolis", locs[1].Name)
	assert.Equal(t, 23.0, locs[1].Weight)
	assert.Equal(t, 16.0, locs[1].SigmaKm)
}

func TestConvertCSVSkipsHeader(t *testing.T) {
	in := strings.NewReader(
		"city,lat,lon,population\n" +
			"Springfield,39.8,-89.6,114000\n")
	var out bytes.Buffer

	n, err := ConvertCSV(in, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConvertCSVDedupKeepsLargestPopulation(t *testing.T) {
	in := strings.NewReader(
		"Springfield,39.8,-89.6,114000\n" +
			"Springfield,44.0,-123.0,170000\n")
	var out bytes.Buffer

	n, err := ConvertCSV(in, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var locs []Location
	require.NoError(t, json.Unmarshal(out.Bytes(), &locs))
	require.Len(t, locs, 1)
	assert.Equal(t, 44.0, locs[0].Lat)
	assert.Equal(t, 4.0, locs[0].Weight)
}
