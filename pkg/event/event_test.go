package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/telesim/pkg/geo"
	"github.com/jihwankim/telesim/pkg/rng"
)

var testLoc = geo.Location{Name: "Springfield", Lat: 39.8, Lng: -89.6, Weight: 3, SigmaKm: 10}

func TestBuildShape(t *testing.T) {
	r := rng.New(42)
	now := time.Now()

	ev := Build(testLoc, 39.81, -89.59, r, "run-1", now)

	assert.Equal(t, "incident", ev.Kind)
	assert.Equal(t, now, ev.Timestamp)
	assert.Equal(t, 39.81, ev.Lat)
	assert.Equal(t, -89.59, ev.Lng)
	assert.Equal(t, "Point", ev.Geo.Type)
	// GeoJSON order is [lng, lat].
	assert.Equal(t, [2]float64{-89.59, 39.81}, ev.Geo.Coordinates)
	assert.Equal(t, "Springfield", ev.City)
	assert.Equal(t, 3.0, ev.Weight)
	assert.Equal(t, 10.0, ev.SigmaKm)
	assert.Equal(t, "run-1", ev.RunID)
	assert.NotEmpty(t, ev.Issue.Type)
	assert.NotEqual(t, CategoryUnknown, ev.Issue.Category)
	assert.GreaterOrEqual(t, ev.Issue.Severity, 1)
	assert.LessOrEqual(t, ev.Issue.Severity, 5)
}

func TestBuildIsDeterministicUnderSeed(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := rng.New(7)
	b := rng.New(7)

	for i := 0; i < 200; i++ {
		evA := Build(testLoc, 1, 2, a, "run-x", now)
		evB := Build(testLoc, 1, 2, b, "run-x", now)
		require.Equal(t, evA, evB, "event %d diverged", i)
	}
}

func TestBuildCoversAllCategories(t *testing.T) {
	r := rng.New(1)
	now := time.Now()

	seen := map[Category]bool{}
	for i := 0; i < 2000; i++ {
		ev := Build(testLoc, 0, 0, r, "run-1", now)
		seen[ev.Issue.Category] = true
	}

	for _, c := range []Category{
		CategoryInfrastructure, CategoryConsumer, CategoryBusiness,
		CategoryFederal, CategoryEmergingTech,
	} {
		assert.True(t, seen[c], "category %s never produced", c)
	}
	assert.False(t, seen[CategoryUnknown])
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryInfrastructure, CategoryOf("fiber_cut"))
	assert.Equal(t, CategoryConsumer, CategoryOf("billing_dispute"))
	assert.Equal(t, CategoryFederal, CategoryOf("e911_routing"))
	assert.Equal(t, CategoryUnknown, CategoryOf("quantum_flux"))
}
