// Package geo holds the weighted location catalog incidents are drawn from.
// The catalog is loaded once at startup and immutable afterwards.
package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/jihwankim/telesim/pkg/rng"
)

// kmPerDegree converts a kilometre offset to degrees of latitude/longitude.
// 1 km ≈ 0.009°; good enough at city scale.
const kmPerDegree = 0.009

// Location is one immutable catalog entry.
type Location struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Weight  float64 `json:"weight"`
	SigmaKm float64 `json:"sigmaKm"`
}

// Catalog holds the loaded locations plus a cumulative-weight prefix for
// weighted sampling.
type Catalog struct {
	locations   []Location
	prefix      []float64
	totalWeight float64
}

// Load reads a catalog JSON file and builds the sampling prefix. Entries
// with non-finite coordinates or weight <= 0 are dropped. An empty result
// is an error: the producer cannot start without locations.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var raw []Location
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return FromLocations(raw)
}

// FromLocations builds a catalog from in-memory entries, applying the same
// filtering as Load.
func FromLocations(raw []Location) (*Catalog, error) {
	c := &Catalog{}
	for _, loc := range raw {
		if !finite(loc.Lat) || !finite(loc.Lng) || !finite(loc.Weight) || loc.Weight <= 0 {
			continue
		}
		if loc.SigmaKm < 0 || !finite(loc.SigmaKm) {
			continue
		}
		c.locations = append(c.locations, loc)
		c.totalWeight += loc.Weight
		c.prefix = append(c.prefix, c.totalWeight)
	}

	if len(c.locations) == 0 {
		return nil, fmt.Errorf("catalog contains no usable locations")
	}
	return c, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Size returns the number of usable locations.
func (c *Catalog) Size() int {
	return len(c.locations)
}

// TotalWeight returns the sum of all location weights.
func (c *Catalog) TotalWeight() float64 {
	return c.totalWeight
}

// Pick draws one location, weighted by its catalog weight. Binary search
// over the cumulative prefix finds the entry whose interval contains r.
func (c *Catalog) Pick(r *rng.RNG) Location {
	target := r.Uniform() * c.totalWeight
	i := sort.SearchFloat64s(c.prefix, target)
	if i >= len(c.locations) {
		i = len(c.locations) - 1
	}
	return c.locations[i]
}

// Jitter displaces the location by two independent Gaussian offsets scaled
// by sigmaKm and the configured spread factor. Returns (lat, lng).
func (c *Catalog) Jitter(loc Location, spread float64, r *rng.RNG) (float64, float64) {
	zLat, zLng := r.NormalPair()
	scale := loc.SigmaKm * spread * kmPerDegree
	return loc.Lat + zLat*scale, loc.Lng + zLng*scale
}
