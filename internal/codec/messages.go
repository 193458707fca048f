package codec

import (
	"bus-tracker/internal/position"
)

// Message types carried in the msgType field.
const (
	MsgTypeBuses     = "Buses"
	MsgTypeErrors    = "Errors"
	MsgTypeNewBounds = "newBounds"
)

// Error texts reported to peers.
const (
	ErrRequiresJSON       = "Requires valid JSON"
	ErrRequiresMsgType    = "Requires msgType specified"
	ErrRequiresObject     = "Requires JSON object"
	ErrRequiresBusID      = "Requires busId specified"
	ErrRequiresNumbers    = "Requires numeric lat and lng"
	ErrRequiresBoundsData = "Requires data with south_lat, north_lat, west_lng and east_lng"
)

// BusesMessage is the hub -> viewer snapshot.
type BusesMessage struct {
	MsgType string            `json:"msgType"`
	Buses   []position.Report `json:"buses"`
}

// ErrorsMessage is sent to any peer that sent something the hub could not use.
type ErrorsMessage struct {
	Errors  []string `json:"errors"`
	MsgType string   `json:"msgType"`
}

// BoundsMessage is the viewer -> hub viewport update.
type BoundsMessage struct {
	MsgType string          `json:"msgType"`
	Data    position.Bounds `json:"data"`
}

// busMessage is the producer -> hub report. Older producers send "id"
// instead of "busId".
type busMessage struct {
	BusID string  `json:"busId"`
	ID    string  `json:"id"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Route string  `json:"route"`
}

type boundsEnvelope struct {
	MsgType string       `json:"msgType"`
	Data    *boundsInput `json:"data"`
}

type boundsInput struct {
	SouthLat *float64 `json:"south_lat"`
	NorthLat *float64 `json:"north_lat"`
	WestLng  *float64 `json:"west_lng"`
	EastLng  *float64 `json:"east_lng"`
}
