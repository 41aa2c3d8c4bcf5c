package core

import (
	"time"
)

const (
	// DefaultRoundMinutes is the round duration used when no valid override is supplied.
	DefaultRoundMinutes = 15
	// DefaultPollIntervalSecs is the now-playing refresh interval while a round is active.
	DefaultPollIntervalSecs = 3
	// DefaultDeviceWaitSecs bounds the wait for the local player device to register.
	DefaultDeviceWaitSecs = 10
	// DefaultHistorySize is the number of finished rounds kept for the status view.
	DefaultHistorySize = 50
	// DefaultServerPort is the port the control surface listens on.
	DefaultServerPort = 8080
)

type Config struct {
	Spotify  SpotifyConfig
	Roulette RouletteConfig
	Server   ServerConfig
	Log      LogConfig
}

type SpotifyConfig struct {
	ClientID    string
	RedirectURL string
	Scopes      []string
}

type RouletteConfig struct {
	RoundMinutes     int
	PollIntervalSecs int
	GenresPath       string
	LocalPlayerName  string
	DeviceWaitSecs   int
	HistorySize      int
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURL: "http://localhost:8080/callback",
			Scopes: []string{
				"user-modify-playback-state",
				"user-read-playback-state",
				"user-read-currently-playing",
				"streaming",
			},
		},
		Roulette: RouletteConfig{
			RoundMinutes:     DefaultRoundMinutes,
			PollIntervalSecs: DefaultPollIntervalSecs,
			GenresPath:       "./genres.yaml",
			LocalPlayerName:  "Genre Roulette Player",
			DeviceWaitSecs:   DefaultDeviceWaitSecs,
			HistorySize:      DefaultHistorySize,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// RoundDuration returns the configured round length.
func (c *RouletteConfig) RoundDuration() time.Duration {
	return time.Duration(c.RoundMinutes) * time.Minute
}

// PollInterval returns the now-playing poll interval.
func (c *RouletteConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// DeviceWait returns the bounded wait for local player registration.
func (c *RouletteConfig) DeviceWait() time.Duration {
	return time.Duration(c.DeviceWaitSecs) * time.Second
}
