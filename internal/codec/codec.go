package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bus-tracker/internal/position"
)

// ProtocolError is a message the peer got wrong. It is reported back to the
// peer as an Errors message and the connection stays open.
type ProtocolError struct {
	Errors []string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + strings.Join(e.Errors, "; ")
}

func protocolError(msgs ...string) *ProtocolError {
	return &ProtocolError{Errors: msgs}
}

// AsProtocolError unwraps err into a *ProtocolError, if it is one.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

/* =======================================================================
                        PRODUCER -> HUB
======================================================================= */

// DecodeBus parses one position report sent by a producer.
func DecodeBus(data []byte) (position.Report, error) {
	if !json.Valid(data) {
		return position.Report{}, protocolError(ErrRequiresJSON)
	}
	if !isObject(data) {
		return position.Report{}, protocolError(ErrRequiresObject)
	}

	var m busMessage
	if err := json.Unmarshal(data, &m); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return position.Report{}, protocolError(ErrRequiresNumbers)
		}
		return position.Report{}, protocolError(ErrRequiresJSON)
	}

	id := m.BusID
	if id == "" {
		id = m.ID
	}
	if id == "" {
		return position.Report{}, protocolError(ErrRequiresBusID)
	}

	return position.Report{ID: id, Lat: m.Lat, Lng: m.Lng, Route: m.Route}, nil
}

// EncodeReport serializes a report the way producers put it on the wire.
func EncodeReport(r position.Report) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report %s: %w", r.ID, err)
	}
	return b, nil
}

/* =======================================================================
                        VIEWER <-> HUB
======================================================================= */

// DecodeBounds parses a viewport update sent by a viewer.
func DecodeBounds(data []byte) (position.Bounds, error) {
	if !json.Valid(data) {
		return position.Bounds{}, protocolError(ErrRequiresJSON)
	}
	if !isObject(data) {
		return position.Bounds{}, protocolError(ErrRequiresMsgType)
	}

	var env boundsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		// msgType or data of the wrong JSON type
		if env.MsgType != MsgTypeNewBounds {
			return position.Bounds{}, protocolError(ErrRequiresMsgType)
		}
		return position.Bounds{}, protocolError(ErrRequiresBoundsData)
	}
	if env.MsgType != MsgTypeNewBounds {
		return position.Bounds{}, protocolError(ErrRequiresMsgType)
	}

	d := env.Data
	if d == nil || d.SouthLat == nil || d.NorthLat == nil || d.WestLng == nil || d.EastLng == nil {
		return position.Bounds{}, protocolError(ErrRequiresBoundsData)
	}

	return position.Bounds{
		SouthLat: *d.SouthLat,
		NorthLat: *d.NorthLat,
		WestLng:  *d.WestLng,
		EastLng:  *d.EastLng,
	}, nil
}

// EncodeBounds builds the newBounds message a viewer sends.
func EncodeBounds(b position.Bounds) ([]byte, error) {
	return json.Marshal(BoundsMessage{MsgType: MsgTypeNewBounds, Data: b})
}

// EncodeBuses builds the Buses snapshot for one viewer.
func EncodeBuses(buses []position.Report) ([]byte, error) {
	if buses == nil {
		buses = []position.Report{}
	}
	return json.Marshal(BusesMessage{MsgType: MsgTypeBuses, Buses: buses})
}

// EncodeErrors builds an Errors message.
func EncodeErrors(errs []string) ([]byte, error) {
	if errs == nil {
		errs = []string{}
	}
	return json.Marshal(ErrorsMessage{Errors: errs, MsgType: MsgTypeErrors})
}
