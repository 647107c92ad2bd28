package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Encoder and decoder modes shared by every producer and consumer of the
// .clog format. Encoding is canonical so identical events marshal to
// identical bytes, and timestamps keep nanosecond precision across a
// round trip.
var (
	clogEncMode cbor.EncMode
	clogDecMode cbor.DecMode
)

func init() {
	var err error

	clogEncMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: clog encoder mode: %v", err))
	}

	// Decoding is deliberately lenient so a .clog written by a newer
	// build stays readable.
	clogDecMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: clog decoder mode: %v", err))
	}
}

// EncodeEvent marshals a single event to its .clog record form. Events use
// integer map keys (the keyasint tags on Event) to keep records compact.
func EncodeEvent(event Event) ([]byte, error) {
	return clogEncMode.Marshal(event)
}

// DecodeEvent unmarshals one .clog record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := clogDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewEncoder returns a streaming event encoder writing .clog records to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return clogEncMode.NewEncoder(w)
}

// NewDecoder returns a streaming event decoder reading .clog records from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return clogDecMode.NewDecoder(r)
}
