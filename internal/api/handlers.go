package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/plantconnect/internal/httputil"
	"github.com/banshee-data/plantconnect/internal/interaction"
	"github.com/banshee-data/plantconnect/internal/monitoring"
	"github.com/banshee-data/plantconnect/internal/sensor"
	"github.com/banshee-data/plantconnect/internal/serialmux"
	"github.com/banshee-data/plantconnect/internal/session"
	"github.com/banshee-data/plantconnect/internal/synth"
)

const defaultConversationLimit = 50

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

type sessionRequest struct {
	Active bool `json:"active"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type audioRequest struct {
	Enabled   bool     `json:"enabled"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type synthRequest struct {
	Params       *synth.SynthParams `json:"params,omitempty"`
	MasterVolume *float64           `json:"master_volume,omitempty"`
}

type synthResponse struct {
	Params       synth.SynthParams `json:"params"`
	MasterVolume float64           `json:"master_volume"`
	State        string            `json:"state"`
}

type hardwareRequest struct {
	Port    string                `json:"port"`
	Options serialmux.PortOptions `json:"options"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.sess.Status())
	case http.MethodPost:
		var req sessionRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if req.Active {
			if err := s.sess.Start(r.Context()); err != nil {
				httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
		} else {
			s.sess.Stop()
		}
		httputil.WriteJSONOK(w, s.sess.Status())
	case http.MethodDelete:
		s.sess.Stop()
		httputil.WriteJSONOK(w, s.sess.Status())
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.sess.Status())
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	points := s.sess.Chart()
	if points == nil {
		points = []sensor.ChartPoint{}
	}
	httputil.WriteJSONOK(w, points)
}

func (s *Server) showConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := defaultConversationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries := s.sess.History().Last(limit)
	if entries == nil {
		entries = []interaction.Entry{}
	}
	httputil.WriteJSONOK(w, entries)
}

func (s *Server) showInsight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	ins, ok := s.sess.Insight()
	if !ok {
		httputil.WriteJSONError(w, http.StatusNotFound, "no insight yet")
		return
	}
	httputil.WriteJSONOK(w, ins)
}

// showLatestSpeech returns the last clip's metadata, or its audio with
// ?audio=1. Baseline clips have no audio; the client speaks the text.
func (s *Server) showLatestSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	clip := s.sess.Speaker().Latest()
	if clip == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "nothing spoken yet")
		return
	}
	if r.URL.Query().Get("audio") != "1" {
		httputil.WriteJSONOK(w, clip)
		return
	}
	if len(clip.Audio) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "clip has no audio")
		return
	}
	w.Header().Set("Content-Type", clip.Format)
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Audio)))
	_, _ = w.Write(clip.Audio)
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.sess.SimulateTouch(); err != nil {
		if errors.Is(err, sensor.ErrHardwareActive) {
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
			return
		}
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "touched"})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req messageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	switch err := s.sess.Say(req.Text); {
	case err == nil:
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	case errors.Is(err, interaction.ErrEmpty):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, interaction.ErrBusy), errors.Is(err, session.ErrNotStarted):
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
	default:
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStreaming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req toggleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.sess.SetStreaming(req.Enabled); err != nil {
		if errors.Is(err, session.ErrNotStarted) {
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
			return
		}
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.sess.Status())
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req audioRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Threshold != nil {
		if *req.Threshold < 0 || *req.Threshold >= 120 {
			httputil.BadRequest(w, "threshold must be in [0, 120)")
			return
		}
		s.sess.SetAudioThreshold(*req.Threshold)
	}
	if err := s.sess.SetAudio(req.Enabled); err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.sess.Status())
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req toggleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	s.sess.SetVoice(req.Enabled)
	httputil.WriteJSONOK(w, s.sess.Status())
}

func (s *Server) synthState() synthResponse {
	e := s.sess.Engine()
	return synthResponse{Params: e.Params(), MasterVolume: e.MasterVolume(), State: e.State().String()}
}

// handleSynth reads or patches the synth. Params replace the current set
// as a whole, so clients send back what GET returned with their edits.
func (s *Server) handleSynth(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.synthState())
	case http.MethodPost:
		var req synthRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if p := req.Params; p != nil {
			if p.FMin <= 0 || p.FMax <= p.FMin || p.MinVol < 0 || p.AmpMax < p.MinVol {
				httputil.BadRequest(w, "params need 0 < f_min < f_max and 0 <= min_vol <= amp_max")
				return
			}
			s.sess.Engine().SetParams(*p)
		}
		if req.MasterVolume != nil {
			s.sess.Engine().SetMasterVolume(*req.MasterVolume)
		}
		httputil.WriteJSONOK(w, s.synthState())
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleHardware lists ports (GET), connects one (POST) or goes back to
// simulation (DELETE).
func (s *Server) handleHardware(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ports, err := s.listing()
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ports == nil {
			ports = []string{}
		}
		httputil.WriteJSONOK(w, map[string]any{"ports": ports, "source": s.sess.Status().Source})
	case http.MethodPost:
		if s.serial == nil {
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, "serial hardware is disabled")
			return
		}
		var req hardwareRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if req.Port == "" {
			httputil.BadRequest(w, "port is required")
			return
		}
		opts, err := req.Options.Normalize()
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		mux, err := s.serial(req.Port, opts)
		if err != nil {
			monitoring.Logf("api: open serial %s: %v", req.Port, err)
			httputil.WriteJSONError(w, http.StatusBadGateway, err.Error())
			return
		}
		if err := s.sess.ConnectHardware(mux); err != nil {
			_ = mux.Close()
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
			return
		}
		httputil.WriteJSONOK(w, s.sess.Status())
	case http.MethodDelete:
		if err := s.sess.DisconnectHardware(); err != nil {
			if errors.Is(err, session.ErrNoHardware) {
				httputil.WriteJSONError(w, http.StatusConflict, err.Error())
				return
			}
			httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		httputil.WriteJSONOK(w, s.sess.Status())
	default:
		httputil.MethodNotAllowed(w)
	}
}
