package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

const compressMinSize = 1024

var gzipPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	},
}

// CompressionMiddleware gzips text and JSON responses of at least 1KiB,
// which in practice means metrics scrapes and readiness reports.
// WebSocket upgrades pass through untouched.
func CompressionMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isUpgrade(r) || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
				next.ServeHTTP(w, r)
				return
			}

			cw := &compressWriter{ResponseWriter: w}
			defer cw.Close()

			next.ServeHTTP(cw, r)
		})
	}
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// compressWriter buffers the first compressMinSize bytes to decide whether
// compression is worth it.
type compressWriter struct {
	http.ResponseWriter
	gzWriter    *gzip.Writer
	buf         []byte
	status      int
	wroteHeader bool
}

func (cw *compressWriter) shouldCompress() bool {
	if cw.Header().Get("Content-Encoding") != "" {
		return false
	}
	ct := strings.ToLower(cw.Header().Get("Content-Type"))
	return strings.HasPrefix(ct, "text/") || strings.Contains(ct, "application/json")
}

func (cw *compressWriter) WriteHeader(code int) {
	if cw.status == 0 {
		cw.status = code
	}
}

func (cw *compressWriter) Write(b []byte) (int, error) {
	if cw.gzWriter != nil {
		return cw.gzWriter.Write(b)
	}
	if cw.wroteHeader {
		return cw.ResponseWriter.Write(b)
	}

	cw.buf = append(cw.buf, b...)
	if len(cw.buf) < compressMinSize {
		return len(b), nil
	}

	if cw.shouldCompress() {
		cw.startCompress()
	}
	if err := cw.flushBuffer(); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (cw *compressWriter) startCompress() {
	cw.Header().Set("Content-Encoding", "gzip")
	cw.Header().Add("Vary", "Accept-Encoding")
	cw.Header().Del("Content-Length")

	gz := gzipPool.Get().(*gzip.Writer)
	gz.Reset(cw.ResponseWriter)
	cw.gzWriter = gz
}

func (cw *compressWriter) flushBuffer() error {
	status := cw.status
	if status == 0 {
		status = http.StatusOK
	}
	cw.ResponseWriter.WriteHeader(status)
	cw.wroteHeader = true

	buf := cw.buf
	cw.buf = nil
	var err error
	if cw.gzWriter != nil {
		_, err = cw.gzWriter.Write(buf)
	} else {
		_, err = cw.ResponseWriter.Write(buf)
	}
	return err
}

// Close flushes anything still buffered uncompressed and releases the
// gzip writer.
func (cw *compressWriter) Close() {
	if !cw.wroteHeader {
		cw.flushBuffer()
	}
	if cw.gzWriter != nil {
		cw.gzWriter.Close()
		gzipPool.Put(cw.gzWriter)
		cw.gzWriter = nil
	}
}
