package protocol

import (
	"bytes"
	"testing"

	"github.com/sadewadee/phpbridge/internal/bridge"
)

func benchCall() *Call {
	return &Call{
		ID:     1,
		Target: bridge.ByName("array_sum"),
		Args: []bridge.Value{
			bridge.List(bridge.Int(1), bridge.Int(2), bridge.Int(3), bridge.Float(4.5)),
			bridge.Map(
				bridge.P(bridge.String("user"), bridge.String("alice")),
				bridge.P(bridge.String("roles"), bridge.List(bridge.String("admin"), bridge.String("dev"))),
			),
		},
	}
}

func BenchmarkWriteFrame(b *testing.B) {
	var buf bytes.Buffer
	frame := &Frame{
		Type:    TypeCall,
		Flags:   0,
		Headers: []byte(`{"id":1,"function":"identity"}`),
		Payload: []byte("Hello, World!"),
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		WriteFrame(&buf, frame)
	}
}

func BenchmarkReadFrame(b *testing.B) {
	frame := &Frame{
		Type:    TypeResult,
		Flags:   0,
		Headers: []byte(`{"id":1}`),
		Payload: bytes.Repeat([]byte("a"), 4096),
	}

	var buf bytes.Buffer
	WriteFrame(&buf, frame)
	data := buf.Bytes()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		reader := bytes.NewReader(data)
		ReadFrame(reader)
	}
}

func BenchmarkEncodeCall(b *testing.B) {
	for _, c := range []Codec{CodecMsgpack, CodecCBOR} {
		b.Run(c.String(), func(b *testing.B) {
			call := benchCall()
			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				EncodeCall(c, 0, call)
			}
		})
	}
}

func BenchmarkDecodeCall(b *testing.B) {
	for _, c := range []Codec{CodecMsgpack, CodecCBOR} {
		b.Run(c.String(), func(b *testing.B) {
			frame, _ := EncodeCall(c, 0, benchCall())
			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				DecodeCall(frame)
			}
		})
	}
}

func BenchmarkLargePayload(b *testing.B) {
	sizes := []struct {
		name string
		size int
	}{
		{"1KB", 1024},
		{"64KB", 64 * 1024},
		{"1MB", 1024 * 1024},
	}

	for _, s := range sizes {
		b.Run(s.name, func(b *testing.B) {
			v := bridge.Bytes(bytes.Repeat([]byte("x"), s.size))
			var buf bytes.Buffer
			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				buf.Reset()
				frame, _ := EncodeResult(CodecMsgpack, 0, 1, v, nil)
				WriteFrame(&buf, frame)
				f, _ := ReadFrame(&buf)
				DecodeResult(f)
			}
		})
	}
}

func BenchmarkPingPong(b *testing.B) {
	var buf bytes.Buffer

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		WriteFrame(&buf, NewPingFrame())
		ReadFrame(&buf)
	}
}
