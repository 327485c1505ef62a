// Package api serves the JSON control surface and the observer websocket.
package api

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/plantconnect/internal/serialmux"
	"github.com/banshee-data/plantconnect/internal/session"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// SerialMuxFactory opens a serial mux for a port path. It is injected so
// tests and the disabled mode can supply their own constructor.
type SerialMuxFactory func(path string, opts serialmux.PortOptions) (serialmux.SerialMuxInterface, error)

// RealSerialFactory opens hardware through go.bug.st/serial.
func RealSerialFactory(path string, opts serialmux.PortOptions) (serialmux.SerialMuxInterface, error) {
	return serialmux.NewRealSerialMux(path, opts)
}

type Server struct {
	sess    *session.Session
	ws      http.Handler
	serial  SerialMuxFactory
	listing func() ([]string, error)
}

// NewServer wires the handlers. ws may be nil when no hub is running; a nil
// factory refuses hardware connections.
func NewServer(sess *session.Session, ws http.Handler, serial SerialMuxFactory) *Server {
	return &Server{sess: sess, ws: ws, serial: serial, listing: serialmux.ListPorts}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack passes websocket upgrades through to the underlying writer.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/chart", s.showChart)
	mux.HandleFunc("/api/conversation", s.showConversation)
	mux.HandleFunc("/api/insight", s.showInsight)
	mux.HandleFunc("/api/speech/latest", s.showLatestSpeech)
	mux.HandleFunc("/api/touch", s.handleTouch)
	mux.HandleFunc("/api/message", s.handleMessage)
	mux.HandleFunc("/api/streaming", s.handleStreaming)
	mux.HandleFunc("/api/audio", s.handleAudio)
	mux.HandleFunc("/api/voice", s.handleVoice)
	mux.HandleFunc("/api/synth", s.handleSynth)
	mux.HandleFunc("/api/hardware", s.handleHardware)
	if s.ws != nil {
		mux.Handle("/ws", s.ws)
	}
	return mux
}
