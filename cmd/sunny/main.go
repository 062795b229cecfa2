// Sunny animatronic head daemon. Drives the jaw from streamed speech audio,
// points the eyes at the nearest face, and serves the control dashboard.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/elazer/go-sunny/internal/log"
	"github.com/elazer/go-sunny/pkg/head"
	"github.com/elazer/go-sunny/pkg/rig"
	"github.com/elazer/go-sunny/pkg/servo"
	"github.com/elazer/go-sunny/pkg/settings"
	"github.com/elazer/go-sunny/pkg/speechio"
	"github.com/elazer/go-sunny/pkg/web"
)

func main() {
	port := flag.String("port", "8080", "Dashboard listen port")
	settingsPath := flag.String("settings", "config/settings.json", "Settings file path")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	cameraIndex := flag.Int("camera", -1, "Camera index (overrides settings)")
	rigName := flag.String("rig", "", "Rig name: inmoov, original, simple (overrides settings)")
	i2cDevice := flag.String("i2c", "", "I2C device path (default /dev/i2c-1)")
	speechURL := flag.String("speech-url", "", "Speech service websocket URL (empty runs the mock)")
	sim := flag.Bool("sim", false, "Force simulation, skip servo hardware")
	flag.Parse()

	log.Init(*logLevel)

	store, err := settings.Load(*settingsPath)
	if err != nil {
		log.Error("settings load failed", "path", *settingsPath, "error", err)
		os.Exit(1)
	}

	if *cameraIndex >= 0 {
		if err := store.Set("camera_index", float64(*cameraIndex)); err != nil {
			log.Error("camera override failed", "error", err)
			os.Exit(1)
		}
	}
	if *rigName != "" {
		if _, err := rig.ByName(*rigName); err != nil {
			log.Error("unknown rig", "rig", *rigName)
			os.Exit(1)
		}
		if err := store.Set("servo_config", *rigName); err != nil {
			log.Error("rig override failed", "error", err)
			os.Exit(1)
		}
	}

	bus := openBus(*sim, *i2cDevice)

	speech, err := buildSpeech(store, *speechURL)
	if err != nil {
		log.Error("speech client setup failed", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(*port, store)

	controller, err := head.New(store, bus, head.Options{
		Speech:      speech,
		Broadcaster: server,
		Commands:    server.Commands(),
	})
	if err != nil {
		log.Error("controller setup failed", "error", err)
		os.Exit(1)
	}

	server.StatusFunc = func() web.Status {
		s := controller.Status()
		return web.Status{
			SessionActive:  s.SessionActive,
			TrackingActive: s.TrackingActive,
			Speaking:       s.Speaking,
			Simulated:      s.Simulated,
			Rig:            s.Rig,
			JawOpening:     s.JawOpening,
			EventClients:   server.EventClientCount(),
			CameraClients:  server.CameraClientCount(),
			LastUserText:   s.LastUserText,
			LastSpokenText: s.LastSpokenText,
		}
	}
	server.PositionsFunc = controller.Positions

	server.StartAsync()

	if store.Bool("face_tracking_enabled", true) {
		if err := controller.StartTracking(); err != nil {
			log.Warn("face tracking unavailable", "error", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	controller.Run(ctx)

	// Shutdown order: speech session, tracking, bus, then the server.
	if err := controller.Close(); err != nil {
		log.Warn("controller close", "error", err)
	}
	if err := server.Shutdown(); err != nil {
		log.Warn("server shutdown", "error", err)
	}
	log.Info("shutdown complete")
}

// openBus opens the PCA9685, falling back to nil so the arbiter runs
// simulated.
func openBus(sim bool, device string) servo.Bus {
	if sim {
		log.Info("simulation forced, servo writes go to the shadow table only")
		return nil
	}

	cfg := servo.DefaultPCA9685Config()
	if device != "" {
		cfg.Device = device
	}

	bus, err := servo.OpenPCA9685(cfg)
	if err != nil {
		log.Warn("servo hardware unavailable, running simulated", "error", err)
		return nil
	}
	return bus
}

// buildSpeech returns the websocket client when a URL is configured, else
// the mock so sessions can still be exercised.
func buildSpeech(store *settings.Store, url string) (speechio.Client, error) {
	if url == "" {
		log.Info("no speech service configured, using mock client")
		return speechio.NewMock(), nil
	}

	opts := []speechio.Option{
		speechio.WithURL(url),
		speechio.WithVoice(store.String("voice_id", "matthew")),
	}
	if mic := store.Int("microphone_index", -1); mic >= 0 {
		opts = append(opts, speechio.WithMicrophone(mic))
	}
	if spk := store.Int("speaker_index", -1); spk >= 0 {
		opts = append(opts, speechio.WithSpeaker(spk))
	}

	return speechio.NewWSClient(opts...)
}
