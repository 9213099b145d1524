package protocol_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/sadewadee/phpbridge/internal/bridge"
	"github.com/sadewadee/phpbridge/internal/protocol"
)

var codecs = []protocol.Codec{protocol.CodecMsgpack, protocol.CodecCBOR}

func sampleValues() []bridge.Value {
	return []bridge.Value{
		bridge.Null(),
		bridge.Bool(true),
		bridge.Int(math.MinInt64),
		bridge.Float(math.Inf(-1)),
		bridge.Float(2.5),
		bridge.String(""),
		bridge.Bytes([]byte{0, 0xff, 'a'}),
		bridge.List(),
		bridge.List(bridge.Int(1), bridge.String("two"), bridge.List(bridge.Null())),
		bridge.Map(
			bridge.P(bridge.String("z"), bridge.Int(1)),
			bridge.P(bridge.Int(0), bridge.Map(bridge.P(bridge.String("a"), bridge.Bool(false)))),
			bridge.P(bridge.String("z"), bridge.Int(2)),
		),
	}
}

func TestValueRoundTrip(t *testing.T) {
	for _, c := range codecs {
		t.Run(c.String(), func(t *testing.T) {
			for _, v := range sampleValues() {
				data, err := protocol.EncodeValue(c, v)
				if err != nil {
					t.Fatalf("EncodeValue(%s): %v", v, err)
				}
				got, err := protocol.DecodeValue(c, data)
				if err != nil {
					t.Fatalf("DecodeValue(%s): %v", v, err)
				}
				if !got.Equal(v) {
					t.Errorf("round trip: got %s, want %s", got, v)
				}
			}
		})
	}
}

func TestValuesRoundTrip(t *testing.T) {
	for _, c := range codecs {
		t.Run(c.String(), func(t *testing.T) {
			in := sampleValues()
			data, err := protocol.EncodeValues(c, in)
			if err != nil {
				t.Fatal(err)
			}
			out, err := protocol.DecodeValues(c, data)
			if err != nil {
				t.Fatal(err)
			}
			if len(out) != len(in) {
				t.Fatalf("got %d values, want %d", len(out), len(in))
			}
			for i := range in {
				if !out[i].Equal(in[i]) {
					t.Errorf("value %d: got %s, want %s", i, out[i], in[i])
				}
			}
		})
	}
}

func TestCBOREncodingIsDeterministic(t *testing.T) {
	v := sampleValues()[9]
	a, _ := protocol.EncodeValue(protocol.CodecCBOR, v)
	b, _ := protocol.EncodeValue(protocol.CodecCBOR, v.Clone())
	if !bytes.Equal(a, b) {
		t.Error("canonical CBOR should encode equal values identically")
	}
}

func TestDecodeValueRejectsGarbage(t *testing.T) {
	for _, c := range codecs {
		if _, err := protocol.DecodeValue(c, []byte{0xff}); err == nil {
			t.Errorf("%s: expected error for garbage input", c)
		}
	}
}

func TestParseCodec(t *testing.T) {
	tests := []struct {
		in   string
		want protocol.Codec
		ok   bool
	}{
		{"", protocol.CodecMsgpack, true},
		{"msgpack", protocol.CodecMsgpack, true},
		{"CBOR", protocol.CodecCBOR, true},
		{"json", 0, false},
	}
	for _, tt := range tests {
		got, err := protocol.ParseCodec(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseCodec(%q): err %v", tt.in, err)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("ParseCodec(%q): got %s, want %s", tt.in, got, tt.want)
		}
	}
	if protocol.CodecForFlags(protocol.FlagCBOR) != protocol.CodecCBOR {
		t.Error("FlagCBOR should select CBOR")
	}
}

func TestCallRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		call *protocol.Call
	}{
		{
			name: "function",
			call: &protocol.Call{
				ID:     7,
				Target: bridge.ByName("identity"),
				Args:   []bridge.Value{bridge.Int(42)},
			},
		},
		{
			name: "closure",
			call: &protocol.Call{
				ID:     8,
				Target: bridge.ByClosure(bridge.ClosureIDFromUint64(3)),
				Args:   []bridge.Value{bridge.String("x"), bridge.List(bridge.Int(1))},
			},
		},
		{
			name: "named",
			call: &protocol.Call{
				ID:     9,
				Target: bridge.ByName("str_repeat"),
				Args:   []bridge.Value{bridge.String("ab")},
				Named:  []bridge.NamedArg{{Name: "times", Value: bridge.Int(3)}},
			},
		},
		{
			name: "no args",
			call: &protocol.Call{ID: 10, Target: bridge.ByName("process_callbacks")},
		},
	}

	for _, c := range codecs {
		for _, tt := range tests {
			t.Run(c.String()+"/"+tt.name, func(t *testing.T) {
				frame, err := protocol.EncodeCall(c, 5, tt.call)
				if err != nil {
					t.Fatalf("EncodeCall: %v", err)
				}

				var buf bytes.Buffer
				if err := protocol.WriteFrame(&buf, frame); err != nil {
					t.Fatal(err)
				}
				read, err := protocol.ReadFrame(&buf)
				if err != nil {
					t.Fatal(err)
				}
				if read.StreamID != 5 || read.Codec() != c {
					t.Fatalf("frame: stream %d codec %s", read.StreamID, read.Codec())
				}

				got, err := protocol.DecodeCall(read)
				if err != nil {
					t.Fatalf("DecodeCall: %v", err)
				}
				if got.ID != tt.call.ID || got.Target != tt.call.Target {
					t.Errorf("header: got %d %s, want %d %s", got.ID, got.Target, tt.call.ID, tt.call.Target)
				}
				if len(got.Args) != len(tt.call.Args) || len(got.Named) != len(tt.call.Named) {
					t.Fatalf("args: got %d/%d, want %d/%d", len(got.Args), len(got.Named), len(tt.call.Args), len(tt.call.Named))
				}
				for i := range got.Args {
					if !got.Args[i].Equal(tt.call.Args[i]) {
						t.Errorf("arg %d: got %s", i, got.Args[i])
					}
				}
				for i := range got.Named {
					if got.Named[i].Name != tt.call.Named[i].Name || !got.Named[i].Value.Equal(tt.call.Named[i].Value) {
						t.Errorf("named %d: got %v", i, got.Named[i])
					}
				}
			})
		}
	}
}

func TestDecodeCallErrors(t *testing.T) {
	if _, err := protocol.DecodeCall(protocol.NewPingFrame()); err == nil {
		t.Error("expected error decoding PING as CALL")
	}

	headers, _ := protocol.CodecMsgpack.Marshal(&protocol.CallHeader{ID: 1})
	if _, err := protocol.DecodeCall(&protocol.Frame{Type: protocol.TypeCall, Headers: headers}); err == nil {
		t.Error("expected error for call without target")
	}

	headers, _ = protocol.CodecMsgpack.Marshal(&protocol.CallHeader{ID: 1, Function: "f", Closure: 2})
	if _, err := protocol.DecodeCall(&protocol.Frame{Type: protocol.TypeCall, Headers: headers}); err == nil {
		t.Error("expected error for call with two targets")
	}

	headers, _ = protocol.CodecMsgpack.Marshal(&protocol.CallHeader{ID: 1, Function: "f", Named: []string{"a"}})
	if _, err := protocol.DecodeCall(&protocol.Frame{Type: protocol.TypeCall, Headers: headers}); err == nil {
		t.Error("expected error for named argument without value")
	}
}

func TestResultRoundTrip(t *testing.T) {
	for _, c := range codecs {
		t.Run(c.String(), func(t *testing.T) {
			frame, err := protocol.EncodeResult(c, 1, 99, bridge.String("ok"), nil)
			if err != nil {
				t.Fatal(err)
			}
			id, v, err := protocol.DecodeResult(frame)
			if err != nil || id != 99 || !v.Equal(bridge.String("ok")) {
				t.Fatalf("success: got %d %s %v", id, v, err)
			}

			callErr := &bridge.CallError{RequestID: 4, Err: &bridge.UnknownTargetError{Target: bridge.ByName("nope")}}
			frame, err = protocol.EncodeResult(c, 1, 100, bridge.Value{}, callErr)
			if err != nil {
				t.Fatal(err)
			}
			id, _, err = protocol.DecodeResult(frame)
			if id != 100 {
				t.Errorf("failed result id: got %d", id)
			}
			var remote *protocol.RemoteError
			if !errors.As(err, &remote) || remote.Kind != protocol.ErrorKindUnknownTarget {
				t.Fatalf("expected RemoteError of kind unknown_target, got %v", err)
			}
			if !errors.Is(err, bridge.ErrUnknownTarget) {
				t.Error("RemoteError should match ErrUnknownTarget")
			}
		})
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{bridge.ArgConversionError(0, "bad"), protocol.ErrorKindConversion},
		{&bridge.InvocationError{Target: bridge.ByName("f"), Err: errors.New("boom")}, protocol.ErrorKindInvocation},
		{bridge.ErrWaitTimeout, protocol.ErrorKindTimeout},
		{errors.New("other"), protocol.ErrorKindInternal},
	}
	for _, tt := range tests {
		if got := protocol.ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v): got %s, want %s", tt.err, got, tt.want)
		}
	}
}

func nestedList(depth int) bridge.Value {
	v := bridge.Int(1)
	for i := 0; i < depth; i++ {
		v = bridge.List(v)
	}
	return v
}

func nestedMap(depth int) bridge.Value {
	v := bridge.String("leaf")
	for i := 0; i < depth; i++ {
		v = bridge.Map(bridge.P(bridge.Int(int64(i)), v))
	}
	return v
}

func TestDeepValuesRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    bridge.Value
	}{
		{"list 16", nestedList(16)},
		{"list 100", nestedList(100)},
		{"list 255", nestedList(255)},
		{"map 100", nestedMap(100)},
		{"map 255", nestedMap(255)},
	}
	for _, c := range codecs {
		for _, tt := range tests {
			t.Run(c.String()+"/"+tt.name, func(t *testing.T) {
				data, err := protocol.EncodeValues(c, []bridge.Value{tt.v})
				if err != nil {
					t.Fatal(err)
				}
				got, err := protocol.DecodeValues(c, data)
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				if len(got) != 1 || !got[0].Equal(tt.v) {
					t.Error("deep value changed in round trip")
				}
			})
		}
	}
}

func TestTooDeepValueRejected(t *testing.T) {
	for _, c := range codecs {
		data, err := protocol.EncodeValue(c, nestedList(300))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := protocol.DecodeValue(c, data); err == nil {
			t.Errorf("%s: expected error for nesting beyond the value depth limit", c)
		}
	}
}
