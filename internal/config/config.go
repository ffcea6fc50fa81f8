// internal/config/config.go
//
// Process configuration.
//
// Values come from the environment, optionally seeded from a .env file in
// the working directory. Every key has a default so the controller starts
// on a bare Raspberry Pi with only the broker and sensor reachable.

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/robalobadob/simon-floor/internal/game"
	"github.com/robalobadob/simon-floor/internal/session"
)

const (
	InputSensor   = "sensor"
	InputKeyboard = "keyboard"

	// BrokerMemory as MQTT_BROKER runs the bus in-process.
	BrokerMemory = "memory"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	InputMode               string        `env:"INPUT_MODE"                envDefault:"sensor"`
	SensorURL               string        `env:"SENSOR_URL"                envDefault:"http://192.168.5.5:8000"`
	SensorReconnectAttempts int           `env:"SENSOR_RECONNECT_ATTEMPTS" envDefault:"5"`
	SensorReconnectDelay    time.Duration `env:"SENSOR_RECONNECT_DELAY"    envDefault:"1s"`

	MQTTBroker   string `env:"MQTT_BROKER"    envDefault:"tcp://localhost:1883"`
	MQTTClientID string `env:"MQTT_CLIENT_ID" envDefault:"simon-floor"`
	MQTTUsername string `env:"MQTT_USERNAME"`
	MQTTPassword string `env:"MQTT_PASSWORD"`

	TopicSequence   string `env:"TOPIC_SEQUENCE"   envDefault:"Tapis/sequence"`
	TopicDifficulty string `env:"TOPIC_DIFFICULTY" envDefault:"site/difficulte"`
	TopicStart      string `env:"TOPIC_START"      envDefault:"site/start"`
	TopicScore      string `env:"TOPIC_SCORE"      envDefault:"Tapis/score"`

	DifficultyTimeout time.Duration `env:"DIFFICULTY_TIMEOUT" envDefault:"30s"`
	ReminderInterval  time.Duration `env:"REMINDER_INTERVAL"  envDefault:"5s"`
	MinInterArrival   time.Duration `env:"MIN_INTER_ARRIVAL"  envDefault:"500ms"`
	PollInterval      time.Duration `env:"POLL_INTERVAL"      envDefault:"100ms"`
	ErrorCueDelay     time.Duration `env:"ERROR_CUE_DELAY"    envDefault:"1s"`

	AudioEnabled bool          `env:"AUDIO_ENABLED" envDefault:"true"`
	SoundDir     string        `env:"SOUND_DIR"     envDefault:"./sounds"`
	SoundSynth   bool          `env:"SOUND_SYNTH"   envDefault:"true"`
	BaseDwell    time.Duration `env:"BASE_DWELL"    envDefault:"2s"`
	AudioVolume  float64       `env:"AUDIO_VOLUME"  envDefault:"1"`

	ZoneSplitX  float64 `env:"ZONE_SPLIT_X"  envDefault:"0.5"`
	ZoneBandMin float64 `env:"ZONE_BAND_MIN" envDefault:"1.0"`
	ZoneBandMax float64 `env:"ZONE_BAND_MAX" envDefault:"1.5"`
	ZoneYMin    float64 `env:"ZONE_Y_MIN"    envDefault:"0"`
	ZoneYMax    float64 `env:"ZONE_Y_MAX"    envDefault:"2"`

	DBPath string `env:"DB_PATH" envDefault:"./data/simon.db"`

	HTTPAddr             string `env:"HTTP_ADDR"              envDefault:":5175"`
	ClientOrigin         string `env:"CLIENT_ORIGIN"          envDefault:"http://localhost:5173"`
	CookieName           string `env:"COOKIE_NAME"            envDefault:"simon_token"`
	CookieSecure         bool   `env:"COOKIE_SECURE"`
	JWTSecret            string `env:"JWT_SECRET"             envDefault:"dev_secret_change_me"`
	JWTExpiresHours      int    `env:"JWT_EXPIRES_HOURS"      envDefault:"12"`
	OperatorPasswordHash string `env:"OPERATOR_PASSWORD_HASH"`
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.InputMode != InputSensor && c.InputMode != InputKeyboard {
		errs = append(errs, fmt.Errorf("INPUT_MODE must be %q or %q, got %q", InputSensor, InputKeyboard, c.InputMode))
	}
	if c.ZoneBandMin >= c.ZoneBandMax {
		errs = append(errs, errors.New("ZONE_BAND_MIN must be below ZONE_BAND_MAX"))
	}
	if c.ZoneYMin >= c.ZoneYMax {
		errs = append(errs, errors.New("ZONE_Y_MIN must be below ZONE_Y_MAX"))
	}
	if c.MinInterArrival < 0 {
		errs = append(errs, errors.New("MIN_INTER_ARRIVAL must not be negative"))
	}
	if c.JWTExpiresHours <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES_HOURS must be positive"))
	}
	return errors.Join(errs...)
}

// InProcessBus reports whether no broker is configured.
func (c Config) InProcessBus() bool {
	return c.MQTTBroker == "" || c.MQTTBroker == BrokerMemory
}

func (c Config) Zones() game.Zones {
	return game.Zones{
		SplitX:  c.ZoneSplitX,
		BandMin: c.ZoneBandMin,
		BandMax: c.ZoneBandMax,
		YMin:    c.ZoneYMin,
		YMax:    c.ZoneYMax,
	}
}

func (c Config) Topics() session.Topics {
	return session.Topics{
		Sequence:   c.TopicSequence,
		Difficulty: c.TopicDifficulty,
		Start:      c.TopicStart,
		Score:      c.TopicScore,
	}
}

// SessionOptions maps the timing keys onto session options. Generator and
// recorder are left to the caller.
func (c Config) SessionOptions() session.Options {
	return session.Options{
		Topics:            c.Topics(),
		DifficultyTimeout: c.DifficultyTimeout,
		ReminderInterval:  c.ReminderInterval,
		MinInterArrival:   c.MinInterArrival,
		PollInterval:      c.PollInterval,
		ErrorCueDelay:     c.ErrorCueDelay,
		CueDwell:          c.BaseDwell,
	}
}
