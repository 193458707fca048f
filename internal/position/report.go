package position

// Report is the last known position of one bus. Reports are values: the
// registry stores and hands out copies, a newer report for the same ID
// replaces the older one whole.
type Report struct {
	ID    string  `json:"busId"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Route string  `json:"route"`
}

// Coordinate is one (lat, lng) point of a route.
type Coordinate struct {
	Lat float64
	Lng float64
}

// NewReport builds the report a simulated bus emits at coordinate c.
func NewReport(id, route string, c Coordinate) Report {
	return Report{ID: id, Lat: c.Lat, Lng: c.Lng, Route: route}
}
