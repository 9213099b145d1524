package protocol

import (
	"errors"
	"fmt"

	"github.com/sadewadee/phpbridge/internal/bridge"
)

// CallHeader holds call metadata. Exactly one of Function and Closure is
// set. Named lists the names of the trailing payload values that are named
// arguments.
type CallHeader struct {
	ID       uint64   `msgpack:"id" cbor:"1,keyasint"`
	Function string   `msgpack:"function,omitempty" cbor:"2,keyasint,omitempty"`
	Closure  uint64   `msgpack:"closure,omitempty" cbor:"3,keyasint,omitempty"`
	Named    []string `msgpack:"named,omitempty" cbor:"4,keyasint,omitempty"`
}

// Call is a decoded CALL frame. ID is chosen by the client and echoed in
// the result.
type Call struct {
	ID     uint64
	Target bridge.Target
	Args   []bridge.Value
	Named  []bridge.NamedArg
}

// EncodeCall creates a CALL frame.
func EncodeCall(c Codec, streamID uint16, call *Call) (*Frame, error) {
	hdr := CallHeader{ID: call.ID}
	if call.Target.IsClosure() {
		hdr.Closure = call.Target.Closure.Uint64()
	} else {
		hdr.Function = call.Target.Function
	}

	values := append([]bridge.Value(nil), call.Args...)
	for _, na := range call.Named {
		hdr.Named = append(hdr.Named, na.Name)
		values = append(values, na.Value)
	}

	headers, err := c.Marshal(&hdr)
	if err != nil {
		return nil, fmt.Errorf("encoding call headers: %w", err)
	}
	payload, err := EncodeValues(c, values)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Type:     TypeCall,
		Flags:    c.Flags(),
		StreamID: streamID,
		Headers:  headers,
		Payload:  payload,
	}, nil
}

// DecodeCall extracts a call from a CALL frame.
func DecodeCall(f *Frame) (*Call, error) {
	if f.Type != TypeCall {
		return nil, fmt.Errorf("expected CALL frame, got %s", TypeName(f.Type))
	}
	c := f.Codec()

	var hdr CallHeader
	if err := c.Unmarshal(f.Headers, &hdr); err != nil {
		return nil, fmt.Errorf("decoding call headers: %w", err)
	}

	call := &Call{ID: hdr.ID}
	switch {
	case hdr.Function != "" && hdr.Closure != 0:
		return nil, errors.New("call names both a function and a closure")
	case hdr.Function != "":
		call.Target = bridge.ByName(hdr.Function)
	case hdr.Closure != 0:
		call.Target = bridge.ByClosure(bridge.ClosureIDFromUint64(hdr.Closure))
	default:
		return nil, errors.New("call has no target")
	}

	values, err := DecodeValues(c, f.Payload)
	if err != nil {
		return nil, err
	}
	if len(hdr.Named) > len(values) {
		return nil, fmt.Errorf("call names %d arguments but carries %d values", len(hdr.Named), len(values))
	}

	split := len(values) - len(hdr.Named)
	call.Args = values[:split]
	for i, name := range hdr.Named {
		call.Named = append(call.Named, bridge.NamedArg{Name: name, Value: values[split+i]})
	}
	return call, nil
}

// Error kinds carried in ResultHeader.ErrorKind.
const (
	ErrorKindConversion    = "conversion"
	ErrorKindUnknownTarget = "unknown_target"
	ErrorKindInvocation    = "invocation"
	ErrorKindTimeout       = "timeout"
	ErrorKindInternal      = "internal"
)

// ErrorKind classifies err for the wire.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, bridge.ErrConversion):
		return ErrorKindConversion
	case errors.Is(err, bridge.ErrUnknownTarget):
		return ErrorKindUnknownTarget
	case errors.Is(err, bridge.ErrInvocation):
		return ErrorKindInvocation
	case errors.Is(err, bridge.ErrWaitTimeout):
		return ErrorKindTimeout
	}
	return ErrorKindInternal
}

// ResultHeader holds result metadata. Error is empty on success.
type ResultHeader struct {
	ID        uint64 `msgpack:"id" cbor:"1,keyasint"`
	Error     string `msgpack:"error,omitempty" cbor:"2,keyasint,omitempty"`
	ErrorKind string `msgpack:"error_kind,omitempty" cbor:"3,keyasint,omitempty"`
}

// RemoteError is a call failure reported by the other side. It matches
// the bridge sentinel for its kind with errors.Is.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Is(target error) bool {
	switch e.Kind {
	case ErrorKindConversion:
		return target == bridge.ErrConversion
	case ErrorKindUnknownTarget:
		return target == bridge.ErrUnknownTarget
	case ErrorKindInvocation:
		return target == bridge.ErrInvocation
	case ErrorKindTimeout:
		return target == bridge.ErrWaitTimeout
	}
	return false
}

// EncodeResult creates a RESULT frame for a completed or failed call.
func EncodeResult(c Codec, streamID uint16, id uint64, v bridge.Value, callErr error) (*Frame, error) {
	hdr := ResultHeader{ID: id}
	var payload []byte
	if callErr != nil {
		hdr.Error = callErr.Error()
		hdr.ErrorKind = ErrorKind(callErr)
	} else {
		var err error
		if payload, err = EncodeValue(c, v); err != nil {
			return nil, err
		}
	}

	headers, err := c.Marshal(&hdr)
	if err != nil {
		return nil, fmt.Errorf("encoding result headers: %w", err)
	}
	return &Frame{
		Type:     TypeResult,
		Flags:    c.Flags(),
		StreamID: streamID,
		Headers:  headers,
		Payload:  payload,
	}, nil
}

// DecodeResult extracts a result from a RESULT frame. A failed call is
// returned as a *RemoteError, with the id still set.
func DecodeResult(f *Frame) (uint64, bridge.Value, error) {
	if f.Type != TypeResult {
		return 0, bridge.Value{}, fmt.Errorf("expected RESULT frame, got %s", TypeName(f.Type))
	}
	c := f.Codec()

	var hdr ResultHeader
	if err := c.Unmarshal(f.Headers, &hdr); err != nil {
		return 0, bridge.Value{}, fmt.Errorf("decoding result headers: %w", err)
	}
	if hdr.Error != "" {
		return hdr.ID, bridge.Value{}, &RemoteError{Kind: hdr.ErrorKind, Message: hdr.Error}
	}

	v, err := DecodeValue(c, f.Payload)
	if err != nil {
		return hdr.ID, bridge.Value{}, err
	}
	return hdr.ID, v, nil
}
