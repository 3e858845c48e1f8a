package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// maxLoggedFrameBytes caps how much of a single transport frame's payload
// is retained in a logged FrameEvent. Mesh sensor/command frames are a few
// dozen bytes at most; this ceiling exists so a misbehaving node or a
// corrupt continuation-chunk reassembly can't inflate a long-running
// gateway's .mlog file without bound.
const maxLoggedFrameBytes = 512

// TruncateFrameData trims data to maxLoggedFrameBytes and reports whether
// truncation occurred, so callers building a FrameEvent (pkg/transport) can
// set FrameEvent.Truncated accurately instead of always logging the frame
// as-received.
func TruncateFrameData(data []byte) ([]byte, bool) {
	if len(data) <= maxLoggedFrameBytes {
		return data, false
	}
	out := make([]byte, maxLoggedFrameBytes)
	copy(out, data)
	return out, true
}

// logEncMode is the CBOR encoder mode for protocol log events: canonical
// key ordering and nanosecond-precision timestamps so two runs of the same
// session produce byte-identical log entries.
var logEncMode cbor.EncMode

// logDecMode is the CBOR decoder mode paired with logEncMode.
var logDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	logEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create log CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	logDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create log CBOR decoder mode: %v", err))
	}
}

// EncodeEvent encodes an Event to CBOR bytes using integer keys for compactness.
func EncodeEvent(event Event) ([]byte, error) {
	return logEncMode.Marshal(event)
}

// DecodeEvent decodes CBOR bytes into an Event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := logDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewEncoder creates a CBOR encoder for log events that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return logEncMode.NewEncoder(w)
}

// NewDecoder creates a CBOR decoder for log events that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return logDecMode.NewDecoder(r)
}
