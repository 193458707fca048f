package position

// Bounds is the rectangular map region a viewer is looking at.
//
// The zero value is the degenerate rectangle (0,0,0,0) and contains nothing
// but the exact origin, which no real bus reports.
type Bounds struct {
	SouthLat float64 `json:"south_lat"`
	NorthLat float64 `json:"north_lat"`
	WestLng  float64 `json:"west_lng"`
	EastLng  float64 `json:"east_lng"`
}

// IsVisible reports whether r lies inside b, edges included. Inverted bounds
// (south > north or west > east) contain no report.
func IsVisible(b Bounds, r Report) bool {
	return b.SouthLat <= r.Lat && r.Lat <= b.NorthLat &&
		b.WestLng <= r.Lng && r.Lng <= b.EastLng
}

// Filter returns the reports visible inside b. The result is never nil so it
// encodes as an empty JSON array.
func Filter(b Bounds, reports []Report) []Report {
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		if IsVisible(b, r) {
			out = append(out, r)
		}
	}
	return out
}
