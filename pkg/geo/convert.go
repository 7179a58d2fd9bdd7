package geo

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// WeightForPopulation maps a city population to its sampling weight tier.
func WeightForPopulation(pop int) float64 {
	switch {
	case pop < 20000:
		return 1
	case pop < 50000:
		return 2
	case pop < 120000:
		return 3
	case pop < 250000:
		return 4
	case pop < 500000:
		return 5
	case pop < 1000000:
		return 7
	case pop < 3000000:
		return 10
	case pop < 8000000:
		return 16
	default:
		return 23
	}
}

// SigmaForWeight maps a sampling weight to the Gaussian spread radius in km.
func SigmaForWeight(w float64) float64 {
	switch {
	case w <= 2:
		return 5
	case w <= 5:
		return 10
	case w <= 9:
		return 12
	case w <= 16:
		return 14
	default:
		return 16
	}
}

// ConvertCSV reads a cities CSV (city,lat,lon,population — header optional)
// and writes the catalog JSON. Duplicate city names keep the entry with the
// largest population.
func ConvertCSV(in io.Reader, out io.Writer) (int, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	type row struct {
		name string
		lat  float64
		lng  float64
		pop  int
	}
	var rows []row

	first := true
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read csv: %w", err)
		}
		if len(rec) < 4 {
			continue
		}

		lat, latErr := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		lng, lngErr := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		pop, popErr := strconv.Atoi(strings.TrimSpace(rec[3]))
		if latErr != nil || lngErr != nil || popErr != nil {
			// Tolerate a header line; anything else malformed is skipped.
			if first {
				first = false
				continue
			}
			continue
		}
		first = false

		name := strings.TrimSpace(rec[0])
		if name == "" {
			continue
		}
		rows = append(rows, row{name: name, lat: lat, lng: lng, pop: pop})
	}

	// Keep the largest-population entry per city, preserving input order.
	best := make(map[string]int, len(rows))
	for i, r := range rows {
		if j, ok := best[r.name]; !ok || r.pop > rows[j].pop {
			best[r.name] = i
		}
	}
	keep := make([]int, 0, len(best))
	for _, i := range best {
		keep = append(keep, i)
	}
	sort.Ints(keep)

	locs := make([]Location, 0, len(keep))
	for _, i := range keep {
		r := rows[i]
		w := WeightForPopulation(r.pop)
		locs = append(locs, Location{
			Name:    r.name,
			Lat:     round6(r.lat),
			Lng:     round6(r.lng),
			Weight:  w,
			SigmaKm: SigmaForWeight(w),
		})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(locs); err != nil {
		return 0, fmt.Errorf("failed to write catalog: %w", err)
	}
	return len(locs), nil
}

// ConvertCSVFile is ConvertCSV over file paths.
func ConvertCSVFile(inPath, outPath string) (int, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open csv: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create catalog file: %w", err)
	}
	defer out.Close()

	return ConvertCSV(in, out)
}

func round6(f float64) float64 {
	return float64(int64(f*1e6+copysignHalf(f))) / 1e6
}

func copysignHalf(f float64) float64 {
	if f < 0 {
		return -0.5
	}
	return 0.5
}
