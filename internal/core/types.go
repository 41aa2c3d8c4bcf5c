package core

import (
	"context"
	"time"
)

// RoundPhase describes where the controller is in a round's lifecycle.
type RoundPhase int

const (
	// PhaseIdle indicates no round has been started yet.
	PhaseIdle RoundPhase = iota
	// PhaseSelecting indicates a genre is being drawn and playback commands are being issued.
	PhaseSelecting
	// PhasePlaying indicates a round is active and the countdown is running.
	PhasePlaying
	// PhaseAwaitingAdvance indicates the countdown expired and the controller waits for the user.
	PhaseAwaitingAdvance
)

// String returns the lower-case phase name used in status output and metric labels.
func (p RoundPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSelecting:
		return "selecting"
	case PhasePlaying:
		return "playing"
	case PhaseAwaitingAdvance:
		return "awaiting_advance"
	default:
		return "unknown"
	}
}

// Genre is one entry of the static catalog. Immutable.
type Genre struct {
	Name       string `yaml:"name"`
	PlaylistID string `yaml:"playlist"`
}

// Device is a read-only snapshot of a remote playback device.
type Device struct {
	ID     string
	Name   string
	Type   string
	Active bool
}

// NowPlaying holds the track metadata shown while a round is active.
type NowPlaying struct {
	Track  string `json:"track"`
	Artist string `json:"artist"`
}

// RoundState is the authoritative, controller-owned playback state.
// It is mutated exclusively by the controller's transition functions.
type RoundState struct {
	Phase            RoundPhase
	CurrentGenre     *Genre
	PreviousGenre    *Genre
	SelectedDeviceID string
	RemainingSeconds int
	SkipConsumed     bool
	Round            uint64
}

// Status is the UI projection published after every transition.
type Status struct {
	Phase            string     `json:"phase"`
	Genre            string     `json:"genre,omitempty"`
	RemainingSeconds int        `json:"remaining_seconds"`
	DeviceID         string     `json:"device_id,omitempty"`
	NowPlaying       NowPlaying `json:"now_playing"`
	Message          string     `json:"message,omitempty"`
	Round            uint64     `json:"round"`
}

// RoundRecord describes one finished round for the history view.
type RoundRecord struct {
	Round    uint64        `json:"round"`
	Genre    string        `json:"genre"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// PlaybackGateway is the black-box remote command sink. Every call carries
// the bearer credential; failures carry the remote error detail when present.
type PlaybackGateway interface {
	Play(ctx context.Context, deviceID, playlistID string) error
	Pause(ctx context.Context, deviceID string) error
	SetShuffle(ctx context.Context, deviceID string, shuffle bool) error
	SkipNext(ctx context.Context, deviceID string) error
	ListDevices(ctx context.Context) ([]Device, error)
	GetNowPlaying(ctx context.Context) (*NowPlaying, error)
}

// StatusSink receives status projections. The UI is a pure projection of
// RoundState; the controller never renders anything itself.
type StatusSink interface {
	Publish(status Status)
}

// RoundHistory records finished rounds, bounded to a fixed capacity.
type RoundHistory interface {
	Record(record RoundRecord)
	Recent() []RoundRecord
}

// CredentialStore is the durable key-value store for the bearer token and,
// transiently, the PKCE verifier.
type CredentialStore interface {
	Token() (string, error)
	SetToken(token string) error
	ClearToken() error
	Verifier() (string, error)
	SetVerifier(verifier string) error
	ClearVerifier() error
}
