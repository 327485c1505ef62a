// Plantconnect runs one plant: it samples the touch sensor (or simulates
// one), drives the synth, talks back through the text generation backend
// and streams telemetry to the configured sinks. Shutdown is graceful on
// SIGINT or SIGTERM.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"tailscale.com/tsweb"

	"github.com/banshee-data/plantconnect/internal/api"
	"github.com/banshee-data/plantconnect/internal/config"
	"github.com/banshee-data/plantconnect/internal/db"
	"github.com/banshee-data/plantconnect/internal/httputil"
	"github.com/banshee-data/plantconnect/internal/llm"
	"github.com/banshee-data/plantconnect/internal/monitoring"
	"github.com/banshee-data/plantconnect/internal/serialmux"
	"github.com/banshee-data/plantconnect/internal/session"
	"github.com/banshee-data/plantconnect/internal/sink"
	"github.com/banshee-data/plantconnect/internal/speech"
	"github.com/banshee-data/plantconnect/internal/synth"
	"github.com/banshee-data/plantconnect/internal/telemetry"
	"github.com/banshee-data/plantconnect/internal/version"
	"github.com/banshee-data/plantconnect/internal/ws"
)

type flags struct {
	configPath string
	envFile    string
	listen     string
	dbPath     string
	serialPort string
	baudRate   int
	replay     string
	logLevel   string
	synthWAV   string
	mqttPrefix string
	autostart  bool
	audio      bool
	voice      bool
	stream     bool
	version    bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("plantconnect", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", "", "Path to a .json, .toml or .yaml tuning file")
	fs.StringVar(&f.envFile, "env-file", ".env", "dotenv file with endpoints and keys")
	fs.StringVar(&f.listen, "listen", ":8080", "HTTP listen address")
	fs.StringVar(&f.dbPath, "db", "plantconnect.db", "Path to the local settings database")
	fs.StringVar(&f.serialPort, "serial-port", "", "Serial port of the touch sensor (empty simulates one)")
	fs.IntVar(&f.baudRate, "baud", serialmux.DefaultBaudRate, "Serial baud rate")
	fs.StringVar(&f.replay, "replay", "", "Replay a captured sensor log in a loop instead of opening a port")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level: error, warn, info or debug")
	fs.StringVar(&f.synthWAV, "synth-wav", "", "Record the synth voice to this WAV file")
	fs.StringVar(&f.mqttPrefix, "mqtt-prefix", "plantconnect", "Topic prefix for the MQTT sink")
	fs.BoolVar(&f.autostart, "start", true, "Start the session immediately")
	fs.BoolVar(&f.audio, "audio", false, "Feed the synth from the start")
	fs.BoolVar(&f.voice, "voice", false, "Speak replies from the start")
	fs.BoolVar(&f.stream, "stream", false, "Stream telemetry from the start")
	fs.BoolVar(&f.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.listen == "" {
		return f, errors.New("--listen is required")
	}
	if _, err := monitoring.ParseLevel(f.logLevel); err != nil {
		return f, err
	}
	return f, nil
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
	if f.version {
		fmt.Println(version.String())
		return
	}

	level, _ := monitoring.ParseLevel(f.logLevel)
	logger := monitoring.NewLogger(os.Stderr, level)
	monitoring.UseSlog(logger)

	if err := run(f, logger); err != nil {
		log.Fatalf("plantconnect: %v", err)
	}
}

func run(f flags, logger *slog.Logger) error {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return err
	}
	cfg := &config.Config{}
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
	}

	store, err := db.Open(f.dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoints := config.FromEnv(nil)
	overrides, err := store.Overrides(ctx)
	if err != nil {
		return err
	}
	for _, k := range endpoints.ApplyOverrides(overrides) {
		logger.Warn("ignoring unknown setting", "key", k)
	}
	deviceID := endpoints.DeviceID
	if deviceID == "" {
		deviceID = cfg.GetDeviceID()
	}

	hc := httputil.NewClient(0)

	var backend llm.Backend
	gemini, err := llm.NewGemini(ctx, endpoints.GeminiAPIKey, hc)
	if err != nil {
		return err
	}
	if gemini != nil {
		backend = gemini
	} else {
		logger.Warn("no text generation key configured; replies will say so", "env", config.EnvGeminiKey)
	}
	generator := llm.NewClient(backend, endpoints.Models, llm.WithLogger(logger))

	var primary speech.Synthesizer
	if el := speech.NewElevenLabs(hc, endpoints.TTSAPIKey, endpoints.TTSVoiceID); el != nil {
		primary = el
	}
	speaker := speech.NewSpeaker(primary)

	events, err := buildSink(endpoints, deviceID, f.mqttPrefix, hc)
	if err != nil {
		return err
	}
	defer events.Close()

	insights := telemetry.HybridInsights{Rules: telemetry.RuleInsights{Now: time.Now}}
	if generator.Configured() {
		insights.Responder = generator
	}

	engine := synth.NewEngine(cfg.GetSampleRate(), cfg.GetSynth())
	var recording *synth.WAVWriter
	if f.synthWAV != "" {
		if recording, err = synth.CreateWAV(f.synthWAV, cfg.GetSampleRate()); err != nil {
			return err
		}
		defer recording.Close()
	}

	hub := ws.NewHub()

	opts := session.Options{
		Seed:           uint64(time.Now().UnixNano()),
		SamplePeriod:   cfg.GetSamplePeriod(),
		AdaptGate:      cfg.GetAdaptGate(),
		AdaptRate:      cfg.GetAdaptRate(),
		TouchThreshold: cfg.GetTouchThreshold(),
		TouchDelay:     cfg.GetTouchDelay(),
		AudioThreshold: cfg.GetAudioThreshold(),
		Responder:      generator,
		Speaker:        speaker,
		Engine:         engine,
		Streamer: telemetry.StreamerConfig{
			DeviceID:      deviceID,
			PlantType:     cfg.GetPlantType(),
			EventPeriod:   cfg.GetEventPeriod(),
			InsightPeriod: cfg.GetInsightPeriod(),
			MinEvents:     cfg.GetMinEvents(),
			WindowSize:    cfg.GetWindowSize(),
			Sink:          events,
			Insights:      insights,
		},
		Publisher: hub,
		Recorder:  store,
	}
	if recording != nil {
		opts.Recording = recording
	}
	sess := session.New(opts)
	defer sess.Close()

	srv := api.NewServer(sess, hub.Handler(), api.RealSerialFactory)
	mux := srv.ServeMux()
	srv.AttachDebugRoutes(mux)
	if err := store.AttachAdminRoutes(mux); err != nil {
		return err
	}
	debug := tsweb.Debugger(mux)
	debug.KV("Version", version.String())
	debug.KV("Device", deviceID)

	port := f.serialPort
	if port == "" {
		port = endpoints.SerialPort
	}
	// TODO: the serial debug pages stay bound to this link after
	// /api/hardware swaps or drops it.
	switch {
	case f.replay != "":
		lines, err := readReplay(f.replay)
		if err != nil {
			return err
		}
		hw := serialmux.NewReplaySerialMux(lines, cfg.GetSamplePeriod())
		hw.AttachAdminRoutes(mux)
		if err := sess.ConnectHardware(hw); err != nil {
			return err
		}
	case port != "":
		portOpts, err := serialmux.PortOptions{BaudRate: f.baudRate}.Normalize()
		if err != nil {
			return err
		}
		hw, err := serialmux.NewRealSerialMux(port, portOpts)
		if err != nil {
			return fmt.Errorf("open serial port %s: %w", port, err)
		}
		hw.AttachAdminRoutes(mux)
		if err := sess.ConnectHardware(hw); err != nil {
			return err
		}
	}

	if f.autostart {
		if err := sess.Start(ctx); err != nil {
			return err
		}
		if err := sess.SetAudio(f.audio); err != nil {
			return err
		}
		sess.SetVoice(f.voice)
		if f.stream {
			if err := sess.SetStreaming(true); err != nil {
				return err
			}
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	server := &http.Server{
		Addr:              f.listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", f.listen, "version", version.Version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", "err", err)
		if err := server.Close(); err != nil {
			logger.Warn("HTTP server force close error", "err", err)
		}
	}

	sess.Stop()
	wg.Wait()
	logger.Info("graceful shutdown complete")
	return nil
}

// buildSink combines every configured sink. With none configured events go
// to the log so the stream is still visible.
func buildSink(e config.Endpoints, deviceID, prefix string, hc httputil.HTTPClient) (sink.Sink, error) {
	var sinks sink.Multi
	if e.MQTTURL != "" {
		m, err := sink.NewMQTT(e.MQTTURL, "plantconnect-"+deviceID, prefix)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, m)
	}
	if e.SinkURL != "" {
		h, err := sink.NewHTTP(hc, e.SinkURL, e.SinkToken)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, h)
	}
	if len(sinks) == 0 {
		return sink.Log{}, nil
	}
	return sinks, nil
}

// readReplay loads a capture of raw sensor lines, skipping blanks and
// '#' comments.
func readReplay(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read replay: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("replay %s has no sensor lines", path)
	}
	return lines, nil
}
