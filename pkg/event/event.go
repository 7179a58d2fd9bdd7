// Package event builds incident records from sampled locations. The builder
// is a pure function of the location, the jittered point and the RNG stream.
package event

import (
	"time"

	"github.com/jihwankim/telesim/pkg/geo"
	"github.com/jihwankim/telesim/pkg/rng"
)

// Category tags an issue with the customer segment it affects.
type Category string

const (
	CategoryInfrastructure Category = "infrastructure"
	CategoryConsumer       Category = "consumer"
	CategoryBusiness       Category = "business"
	CategoryFederal        Category = "federal"
	CategoryEmergingTech   Category = "emerging_tech"
	// CategoryUnknown absorbs issue types this build does not know about,
	// so decoding records written by a newer build never fails.
	CategoryUnknown Category = "unknown"
)

// GeoPoint is a GeoJSON point, coordinates ordered [lng, lat].
type GeoPoint struct {
	Type        string     `bson:"type" json:"type"`
	Coordinates [2]float64 `bson:"coordinates" json:"coordinates"`
}

// Issue is the opaque payload describing what went wrong.
type Issue struct {
	Type     string                 `bson:"type" json:"type"`
	Category Category               `bson:"category" json:"category"`
	Severity int                    `bson:"severity" json:"severity"`
	Params   map[string]interface{} `bson:"params,omitempty" json:"params,omitempty"`
}

// IncidentEvent is one persisted incident record. Immutable once written.
type IncidentEvent struct {
	Kind      string    `bson:"kind" json:"kind"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Lat       float64   `bson:"lat" json:"lat"`
	Lng       float64   `bson:"lng" json:"lng"`
	Geo       GeoPoint  `bson:"geo" json:"geo"`
	City      string    `bson:"city" json:"city"`
	Weight    float64   `bson:"weight" json:"weight"`
	SigmaKm   float64   `bson:"sigmaKm" json:"sigmaKm"`
	Issue     Issue     `bson:"issue" json:"issue"`
	RunID     string    `bson:"runId" json:"runId"`
}

// variant describes one issue kind and how to sample its parameters.
type variant struct {
	issueType string
	category  Category
	sample    func(r *rng.RNG) map[string]interface{}
}

// variants is the fixed, ordered enumeration of issue kinds. Order matters:
// the builder indexes into it with a single RNG draw.
var variants = []variant{
	{"fiber_cut", CategoryInfrastructure, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"segment_km":    1 + r.IntN(40),
			"splice_needed": r.Uniform() < 0.7,
		}
	}},
	{"tower_outage", CategoryInfrastructure, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"sectors_down": 1 + r.IntN(3),
			"backup_power": r.Uniform() < 0.5,
		}
	}},
	{"backhaul_congestion", CategoryInfrastructure, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"utilization_pct": 80 + r.IntN(20),
		}
	}},
	{"cable_damage", CategoryInfrastructure, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"cause": pick(r, "excavation", "rodent", "weather", "vandalism"),
		}
	}},
	{"dropped_calls", CategoryConsumer, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"drop_rate_pct": 1 + r.IntN(30),
		}
	}},
	{"slow_data", CategoryConsumer, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"measured_mbps": 1 + r.IntN(20),
		}
	}},
	{"billing_dispute", CategoryConsumer, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"amount_usd": 5 + r.IntN(500),
		}
	}},
	{"sla_breach", CategoryBusiness, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"downtime_min": 5 + r.IntN(240),
		}
	}},
	{"trunk_failure", CategoryBusiness, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"circuits_lost": 1 + r.IntN(24),
		}
	}},
	{"e911_routing", CategoryFederal, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"psap_reachable": r.Uniform() < 0.9,
		}
	}},
	{"emergency_alert_delay", CategoryFederal, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"delay_sec": 10 + r.IntN(600),
		}
	}},
	{"iot_gateway_fault", CategoryEmergingTech, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"devices_offline": 10 + r.IntN(5000),
		}
	}},
	{"network_slice_degradation", CategoryEmergingTech, func(r *rng.RNG) map[string]interface{} {
		return map[string]interface{}{
			"latency_ms": 20 + r.IntN(200),
		}
	}},
}

func pick(r *rng.RNG, opts ...string) string {
	return opts[r.IntN(len(opts))]
}

// categoryByType maps known issue types to their category for decode paths.
var categoryByType = func() map[string]Category {
	m := make(map[string]Category, len(variants))
	for _, v := range variants {
		m[v.issueType] = v.category
	}
	return m
}()

// CategoryOf resolves the category for an issue type tag. Unknown tags map
// to CategoryUnknown rather than failing.
func CategoryOf(issueType string) Category {
	if c, ok := categoryByType[issueType]; ok {
		return c
	}
	return CategoryUnknown
}

// Build produces one incident event. Consumption order on r is fixed:
// variant index, then severity, then the variant's own parameters.
func Build(loc geo.Location, lat, lng float64, r *rng.RNG, runID string, now time.Time) IncidentEvent {
	v := variants[r.IntN(len(variants))]
	issue := Issue{
		Type:     v.issueType,
		Category: v.category,
		Severity: 1 + r.IntN(5),
		Params:   v.sample(r),
	}

	return IncidentEvent{
		Kind:      "incident",
		Timestamp: now,
		Lat:       lat,
		Lng:       lng,
		Geo:       GeoPoint{Type: "Point", Coordinates: [2]float64{lng, lat}},
		City:      loc.Name,
		Weight:    loc.Weight,
		SigmaKm:   loc.SigmaKm,
		Issue:     issue,
		RunID:     runID,
	}
}
