// Package spotify implements the playback gateway over the Spotify Web API.
package spotify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"genreroulette/internal/core"
)

const requestTimeout = 15 * time.Second

// CommandRecorder counts issued remote commands, typically for metrics.
type CommandRecorder interface {
	RecordCommand(command, status string)
}

// Gateway translates controller commands into Spotify Web API calls. Every
// request carries the current bearer credential via the token source.
type Gateway struct {
	client   *spotify.Client
	recorder CommandRecorder
	logger   *zap.Logger
}

// NewGateway creates a gateway over the given token source. The recorder
// may be nil.
func NewGateway(source oauth2.TokenSource, recorder CommandRecorder, logger *zap.Logger, opts ...spotify.ClientOption) *Gateway {
	// No ReuseTokenSource here: the credential can be revoked and replaced
	// at any time, so every request asks the session for the current one.
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: source},
		Timeout:   requestTimeout,
	}

	return &Gateway{
		client:   spotify.New(httpClient, opts...),
		recorder: recorder,
		logger:   logger,
	}
}

// Play begins context playback of the playlist on the target device.
func (g *Gateway) Play(ctx context.Context, deviceID, playlistID string) error {
	id := spotify.ID(deviceID)
	contextURI := spotify.URI("spotify:playlist:" + playlistID)

	err := g.client.PlayOpt(ctx, &spotify.PlayOptions{
		DeviceID:        &id,
		PlaybackContext: &contextURI,
	})
	if err != nil {
		return g.fail("play", err)
	}

	g.record("play")
	g.logger.Info("Playback started",
		zap.String("deviceID", deviceID),
		zap.String("playlistID", playlistID))
	return nil
}

// Pause pauses playback on the target device.
func (g *Gateway) Pause(ctx context.Context, deviceID string) error {
	id := spotify.ID(deviceID)

	if err := g.client.PauseOpt(ctx, &spotify.PlayOptions{DeviceID: &id}); err != nil {
		return g.fail("pause", err)
	}

	g.record("pause")
	g.logger.Info("Playback paused", zap.String("deviceID", deviceID))
	return nil
}

// SetShuffle sets the shuffle state on the target device.
func (g *Gateway) SetShuffle(ctx context.Context, deviceID string, shuffle bool) error {
	id := spotify.ID(deviceID)

	if err := g.client.ShuffleOpt(ctx, shuffle, &spotify.PlayOptions{DeviceID: &id}); err != nil {
		return g.fail("shuffle", err)
	}

	g.record("shuffle")
	g.logger.Debug("Shuffle set",
		zap.String("deviceID", deviceID),
		zap.Bool("shuffle", shuffle))
	return nil
}

// SkipNext skips to the next track on the target device.
func (g *Gateway) SkipNext(ctx context.Context, deviceID string) error {
	id := spotify.ID(deviceID)

	if err := g.client.NextOpt(ctx, &spotify.PlayOptions{DeviceID: &id}); err != nil {
		return g.fail("skip", err)
	}

	g.record("skip")
	g.logger.Info("Skipped to next track", zap.String("deviceID", deviceID))
	return nil
}

// ListDevices returns a snapshot of the available playback devices.
func (g *Gateway) ListDevices(ctx context.Context) ([]core.Device, error) {
	playerDevices, err := g.client.PlayerDevices(ctx)
	if err != nil {
		return nil, g.fail("devices", err)
	}

	devices := make([]core.Device, 0, len(playerDevices))
	for _, device := range playerDevices {
		devices = append(devices, core.Device{
			ID:     string(device.ID),
			Name:   device.Name,
			Type:   device.Type,
			Active: device.Active,
		})
	}

	g.record("devices")
	return devices, nil
}

// GetNowPlaying returns the currently playing track, or nil when nothing is
// playing.
func (g *Gateway) GetNowPlaying(ctx context.Context) (*core.NowPlaying, error) {
	currently, err := g.client.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, g.fail("now_playing", err)
	}

	if currently == nil || currently.Item == nil || !currently.Playing {
		return nil, nil
	}

	return &core.NowPlaying{
		Track:  currently.Item.Name,
		Artist: joinArtists(currently.Item.Artists),
	}, nil
}

// fail converts a client error into a CommandError carrying the remote
// error detail when the API supplied one.
func (g *Gateway) fail(command string, err error) error {
	if g.recorder != nil {
		g.recorder.RecordCommand(command, "error")
	}
	return commandError(command, err)
}

func (g *Gateway) record(command string) {
	if g.recorder != nil {
		g.recorder.RecordCommand(command, "ok")
	}
}

func commandError(command string, err error) error {
	detail := ""
	var spotifyErr spotify.Error
	if errors.As(err, &spotifyErr) {
		detail = spotifyErr.Message
	}
	return &core.CommandError{Command: command, Detail: detail, Err: err}
}

func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, 0, len(artists))
	for _, artist := range artists {
		names = append(names, artist.Name)
	}
	return strings.Join(names, ", ")
}
