package serialmux

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

// AttachAdminRoutes adds the serial pages to the tsweb debug index.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("serial-send", "write a command to the sensor (POST command=...)", s.handleSend)
	debug.HandleFunc("serial-tail", "live tail of sensor lines with their parsed reading", s.handleTail)
	debug.HandleFunc("serial-stats", "line and command counters for the sensor link", s.handleStats)
}

func (s *SerialMux[T]) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}
	if err := s.SendCommand(command); err != nil {
		http.Error(w, "Failed to write command: "+err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "sent %q\n", command)
}

// tailEvent is one server-sent event on the tail page. Reading is nil for
// lines the parser rejects.
type tailEvent struct {
	Line    string   `json:"line"`
	Reading *Reading `json:"reading,omitempty"`
}

func (s *SerialMux[T]) handleTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	id, lines := s.Subscribe()
	defer s.Unsubscribe(id)

	fmt.Fprint(w, ": tailing\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			ev := tailEvent{Line: line}
			if reading, ok := ParseLine(line); ok {
				ev.Reading = &reading
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *SerialMux[T]) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Stats())
}
