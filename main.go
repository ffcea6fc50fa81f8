// main.go
//
// Entry point for the floor game controller.
// Responsibilities:
//   - Load configuration (.env + environment) and set up zerolog.
//   - Open the score database, the message bus and the audio output.
//   - Connect the floor sensor, falling back to the keyboard when it is
//     unreachable at startup.
//   - Run the session listener, cue sequencer, input source and HTTP server
//     until SIGINT/SIGTERM, then shut everything down in order.
//
// `simon-floor hash-password <pw>` prints a bcrypt hash for
// OPERATOR_PASSWORD_HASH and exits.

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/robalobadob/simon-floor/internal/audio"
	"github.com/robalobadob/simon-floor/internal/bus"
	"github.com/robalobadob/simon-floor/internal/config"
	"github.com/robalobadob/simon-floor/internal/game"
	"github.com/robalobadob/simon-floor/internal/httpserver"
	"github.com/robalobadob/simon-floor/internal/input"
	"github.com/robalobadob/simon-floor/internal/scores"
	"github.com/robalobadob/simon-floor/internal/session"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		hashPassword(os.Args[2:])
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	closeLog := setupLogging(cfg)
	defer closeLog()

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("controller exited")
		closeLog()
		os.Exit(1)
	}
	log.Info().Msg("controller stopped")
}

func hashPassword(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: simon-floor hash-password <password>")
		os.Exit(2)
	}
	h, err := httpserver.HashPassword(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(h)
}

// setupLogging writes human-readable logs to stderr, or JSON to LOG_FILE.
// Keyboard mode owns the terminal, so it always logs to a file.
func setupLogging(cfg config.Config) func() {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	path := cfg.LogFile
	if path == "" && cfg.InputMode == config.InputKeyboard {
		path = "simon-floor.log"
	}
	if path == "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		log.Warn().Err(err).Str("path", path).Msg("cannot open log file, logging to stderr")
		return func() {}
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() { _ = f.Close() }
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, db, err := openScores(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	b, err := openBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	seq := audio.NewSequencer(openPlayer(cfg), cfg.BaseDwell, game.Presets[game.Easy].Pacing)
	defer seq.Stop()

	// Stopped before the sequencer and the bus: it publishes the final score.
	opts := cfg.SessionOptions()
	opts.Recorder = st
	sess := session.New(b, opts)
	defer sess.Stop()

	g, ctx := errgroup.WithContext(ctx)
	mode := startInput(ctx, g, cfg, sess, stop)

	srv := httpserver.New(sess, st, httpserver.Options{
		ClientOrigin: cfg.ClientOrigin,
		CookieName:   cfg.CookieName,
		CookieSecure: cfg.CookieSecure,
		JWTSecret:    cfg.JWTSecret,
		JWTTTL:       time.Duration(cfg.JWTExpiresHours) * time.Hour,
		PasswordHash: cfg.OperatorPasswordHash,
		InputMode:    func() string { return mode },
	})

	g.Go(func() error { return sess.Listen(ctx, b) })
	g.Go(func() error { return seq.Listen(ctx, b, cfg.Topics()) })
	g.Go(func() error { return srv.Serve(ctx, cfg.HTTPAddr) })

	log.Info().Str("input", mode).Str("http", cfg.HTTPAddr).Msg("controller ready")
	return g.Wait()
}

func openScores(cfg config.Config) (scores.Store, *sql.DB, error) {
	if cfg.DBPath == "" {
		log.Warn().Msg("DB_PATH empty, scores are kept in memory")
		return scores.NewMemory(), nil, nil
	}
	db, err := scores.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := scores.Migrate(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return scores.NewSQLite(db), db, nil
}

func openBus(ctx context.Context, cfg config.Config) (bus.Bus, error) {
	if cfg.InProcessBus() {
		log.Warn().Msg("no MQTT broker configured, using in-process bus")
		return bus.NewMemory(), nil
	}
	m, err := bus.DialMQTT(ctx, bus.MQTTOptions{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt: %w", err)
	}
	return m, nil
}

func openPlayer(cfg config.Config) audio.Player {
	if !cfg.AudioEnabled {
		log.Info().Msg("audio disabled")
		return audio.Silent{}
	}
	p, err := audio.NewBeepPlayer(audio.BeepOptions{
		Dir:    cfg.SoundDir,
		Synth:  cfg.SoundSynth,
		Volume: cfg.AudioVolume,
	})
	if err != nil {
		log.Warn().Err(err).Msg("audio unavailable, cues will be silent")
		return audio.Silent{}
	}
	return p
}

// startInput launches the configured input source and returns the mode
// actually in use.
func startInput(ctx context.Context, g *errgroup.Group, cfg config.Config, sess *session.Session, shutdown func()) string {
	if cfg.InputMode == config.InputSensor {
		sensor, err := input.NewSensor(input.SensorOptions{
			URL:      cfg.SensorURL,
			Attempts: cfg.SensorReconnectAttempts,
			Delay:    cfg.SensorReconnectDelay,
			Zones:    cfg.Zones(),
		}, sess.Debouncer(), sess.Queue())
		if err == nil {
			err = sensor.Dial(ctx)
		}
		if err == nil {
			g.Go(func() error {
				defer sensor.Close()
				if err := sensor.Run(ctx); err != nil {
					// The game keeps running with the gate open; the HTTP
					// surface still allows aborting.
					log.Error().Err(err).Msg("sensor lost")
				}
				return nil
			})
			return config.InputSensor
		}
		log.Warn().Err(err).Str("url", cfg.SensorURL).Msg("sensor unreachable, falling back to keyboard")
	}

	// Keys are discrete: only the repeated-color filter applies, no spacing.
	kb, err := input.NewKeyboard(input.KeyboardOptions{
		Input:    game.NewDebouncer(sess.Queue(), 0),
		Start:    sess.Start,
		Abort:    sess.Abort,
		Shutdown: shutdown,
		Status:   func() string { return statusLine(sess.Status()) },
	})
	if err != nil {
		log.Error().Err(err).Msg("no terminal available, input disabled")
		return "none"
	}
	g.Go(func() error { return kb.Run(ctx) })
	return config.InputKeyboard
}

func statusLine(s session.Status) string {
	line := s.Phase
	if s.Phase == session.AwaitingDifficulty.String() {
		return line + " | 0 easy  1 medium  2 hard"
	}
	if s.Difficulty != "" {
		line += " | " + s.Difficulty
	}
	if s.Round > 0 {
		line += fmt.Sprintf(" | round %d len %d score %d", s.Round, s.Length, s.Score)
	}
	if s.RemainingMs > 0 {
		line += fmt.Sprintf(" | %.1fs", float64(s.RemainingMs)/1000)
	}
	return line
}
