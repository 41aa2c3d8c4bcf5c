package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// LocalDeviceID is the selection sentinel meaning "use the local player
	// device once it registers". The device itself is resolved lazily.
	LocalDeviceID = "local"

	// preferredDeviceType is the device class preferred over arbitrary
	// devices when nothing is active and no explicit selection exists.
	preferredDeviceType = "Smartphone"

	// localPlayerProbeInterval is how often the device list is re-read while
	// waiting for the local player to register.
	localPlayerProbeInterval = 500 * time.Millisecond
)

// RouletteController owns genre selection, device targeting, and the
// playback timer state machine. All RoundState mutations happen inside its
// transition functions under a single mutex; timers for a round are bound to
// one context and are always cancelled before new ones are armed.
type RouletteController struct {
	config  *RouletteConfig
	catalog *Catalog
	gateway PlaybackGateway
	sink    StatusSink
	history RoundHistory
	clock   clockwork.Clock
	logger  *zap.Logger
	rng     *rand.Rand

	mu             sync.Mutex
	state          RoundState
	duration       time.Duration
	nowPlaying     NowPlaying
	targetDeviceID string
	roundStarted   time.Time
	cancelRound    context.CancelFunc
}

// NewRouletteController creates a controller in the Idle phase.
func NewRouletteController(
	config *RouletteConfig,
	catalog *Catalog,
	gateway PlaybackGateway,
	sink StatusSink,
	history RoundHistory,
	logger *zap.Logger,
) *RouletteController {
	return &RouletteController{
		config:   config,
		catalog:  catalog,
		gateway:  gateway,
		sink:     sink,
		history:  history,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // Genre selection doesn't require crypto-secure randomness
		duration: config.RoundDuration(),
	}
}

// OverrideRoundDuration replaces the round duration. Non-positive values are
// ignored and the current duration is retained.
func (c *RouletteController) OverrideRoundDuration(minutes int) {
	if minutes <= 0 {
		c.logger.Debug("Ignoring invalid round duration override", zap.Int("minutes", minutes))
		return
	}

	c.mu.Lock()
	c.duration = time.Duration(minutes) * time.Minute
	c.mu.Unlock()

	c.logger.Info("Round duration overridden", zap.Int("minutes", minutes))
}

// SelectDevice records an explicit device choice used for subsequent rounds.
// Passing LocalDeviceID selects the local player, which is initialized
// lazily at the next start.
func (c *RouletteController) SelectDevice(deviceID string) {
	c.mu.Lock()
	c.state.SelectedDeviceID = deviceID
	c.publishLocked("")
	c.mu.Unlock()

	c.logger.Info("Device selected", zap.String("deviceID", deviceID))
}

// Devices returns the current remote device snapshot for the chooser.
func (c *RouletteController) Devices(ctx context.Context) ([]Device, error) {
	return c.gateway.ListDevices(ctx)
}

// StartRound starts a new round. Starting while a round is already playing
// is an inert no-op; starting without a resolvable device leaves the
// controller Idle and surfaces a "device not ready" message.
func (c *RouletteController) StartRound(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase == PhasePlaying {
		c.logger.Debug("Start requested while already playing, ignoring")
		return nil
	}

	deviceID, err := c.resolveDeviceLocked(ctx)
	if err != nil {
		c.state.Phase = PhaseIdle
		c.publishLocked("Playback device not ready. Select or wait for a device and try again.")
		c.logger.Warn("Start blocked, no playback device", zap.Error(err))
		return err
	}

	// Cancel the previous round's countdown and poller before any new
	// timer is armed. Ordering matters even within one synchronous turn.
	c.cancelRoundLocked()

	c.state.Phase = PhaseSelecting
	previousName := ""
	if c.state.CurrentGenre != nil {
		previousName = c.state.CurrentGenre.Name
	}
	genre := c.catalog.Pick(c.rng, previousName)
	c.state.PreviousGenre = c.state.CurrentGenre
	c.state.CurrentGenre = &genre
	c.targetDeviceID = deviceID

	c.logger.Info("Starting round",
		zap.Uint64("round", c.state.Round+1),
		zap.String("genre", genre.Name),
		zap.String("deviceID", deviceID),
		zap.Duration("duration", c.duration))

	// Shuffle state is per-device and is set before playback begins. Each
	// command is fire-and-forget with its own error surface.
	message := ""
	if err := c.gateway.SetShuffle(ctx, deviceID, true); err != nil {
		message = userMessage(err)
		c.logger.Warn("Failed to enable shuffle", zap.Error(err))
	}
	if err := c.gateway.Play(ctx, deviceID, genre.PlaylistID); err != nil {
		message = userMessage(err)
		c.logger.Warn("Failed to start playback", zap.Error(err))
	}

	c.state.Round++
	c.state.SkipConsumed = false
	c.state.RemainingSeconds = int(c.duration / time.Second)
	c.state.Phase = PhasePlaying
	c.nowPlaying = NowPlaying{}
	c.roundStarted = c.clock.Now()

	roundCtx, cancel := context.WithCancel(context.Background())
	c.cancelRound = cancel
	go c.runRound(roundCtx, c.state.Round)

	c.publishLocked(message)
	return nil
}

// Advance starts the next round after a countdown expired. It is the same
// transition as a start request.
func (c *RouletteController) Advance(ctx context.Context) error {
	return c.StartRound(ctx)
}

// Skip issues one skip-track command. It is allowed once per round; further
// invocations within the same round are ignored. The countdown is not
// disturbed.
func (c *RouletteController) Skip(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != PhasePlaying {
		c.logger.Debug("Skip requested outside an active round, ignoring")
		return nil
	}

	if c.state.SkipConsumed {
		c.logger.Debug("Skip already consumed this round, ignoring")
		return nil
	}

	if err := c.gateway.SkipNext(ctx, c.targetDeviceID); err != nil {
		c.publishLocked(userMessage(err))
		c.logger.Warn("Failed to skip track", zap.Error(err))
		return err
	}

	c.state.SkipConsumed = true
	c.publishLocked("")
	return nil
}

// Stop cancels any active round timers. Used on shutdown.
func (c *RouletteController) Stop() {
	c.mu.Lock()
	c.cancelRoundLocked()
	c.mu.Unlock()
}

// Status returns the current UI projection.
func (c *RouletteController) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked("")
}

// History returns the recorded finished rounds, most recent first.
func (c *RouletteController) History() []RoundRecord {
	if c.history == nil {
		return nil
	}
	return c.history.Recent()
}

// runRound drives the countdown and the now-playing poll for one round.
// Both stop together when the round context is cancelled.
func (c *RouletteController) runRound(ctx context.Context, round uint64) {
	countdown := c.clock.NewTicker(time.Second)
	defer countdown.Stop()

	poll := c.clock.NewTicker(c.config.PollInterval())
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-countdown.Chan():
			if c.tickCountdown(ctx, round) {
				return
			}
		case <-poll.Chan():
			c.refreshNowPlaying(ctx, round)
		}
	}
}

// tickCountdown decrements the remaining time for the given round. It
// returns true when the round is over or the tick is stale.
func (c *RouletteController) tickCountdown(ctx context.Context, round uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Round != round || c.state.Phase != PhasePlaying {
		return true
	}

	c.state.RemainingSeconds--
	if c.state.RemainingSeconds > 0 {
		c.publishLocked("")
		return false
	}

	c.expireLocked(ctx)
	return true
}

// expireLocked ends the round: pause playback, stop countdown and poller,
// and wait for the user to advance.
func (c *RouletteController) expireLocked(ctx context.Context) {
	c.state.RemainingSeconds = 0

	message := "Round finished. Advance to the next genre when ready."
	if err := c.gateway.Pause(ctx, c.targetDeviceID); err != nil {
		message = userMessage(err)
		c.logger.Warn("Failed to pause playback", zap.Error(err))
	}

	c.cancelRoundLocked()
	c.state.Phase = PhaseAwaitingAdvance

	if c.history != nil && c.state.CurrentGenre != nil {
		c.history.Record(RoundRecord{
			Round:    c.state.Round,
			Genre:    c.state.CurrentGenre.Name,
			Started:  c.roundStarted,
			Duration: c.clock.Now().Sub(c.roundStarted),
		})
	}

	c.logger.Info("Round expired",
		zap.Uint64("round", c.state.Round),
		zap.String("genre", c.state.CurrentGenre.Name))

	c.publishLocked(message)
}

// refreshNowPlaying fetches track metadata for the active round. Responses
// that arrive after the round moved on are dropped.
func (c *RouletteController) refreshNowPlaying(ctx context.Context, round uint64) {
	nowPlaying, err := c.gateway.GetNowPlaying(ctx)
	if err != nil {
		c.logger.Debug("Failed to fetch now playing", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Stale poll response from a previous round.
	if c.state.Round != round || c.state.Phase != PhasePlaying {
		return
	}

	if nowPlaying == nil {
		c.nowPlaying = NowPlaying{}
	} else {
		c.nowPlaying = *nowPlaying
	}
	c.publishLocked("")
}

// resolveDeviceLocked picks the target device for commands: explicit
// selection, then the active remote device, then a preferred-class device,
// then the first available one. The local player is a deliberate last
// resort, initialized lazily by waiting for its registration.
func (c *RouletteController) resolveDeviceLocked(ctx context.Context) (string, error) {
	if c.state.SelectedDeviceID == LocalDeviceID {
		return c.waitForLocalPlayer(ctx)
	}
	if c.state.SelectedDeviceID != "" {
		return c.state.SelectedDeviceID, nil
	}

	devices, err := c.gateway.ListDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	for _, device := range devices {
		if device.Active {
			return device.ID, nil
		}
	}
	for _, device := range devices {
		if device.Type == preferredDeviceType {
			return device.ID, nil
		}
	}
	if len(devices) > 0 {
		return devices[0].ID, nil
	}

	if c.config.LocalPlayerName != "" {
		return c.waitForLocalPlayer(ctx)
	}

	return "", ErrDeviceUnavailable
}

// waitForLocalPlayer waits, bounded, for the local player device to show up
// in the device list. The wait is explicit rather than an unbounded
// readiness listener.
func (c *RouletteController) waitForLocalPlayer(ctx context.Context) (string, error) {
	if c.config.LocalPlayerName == "" {
		return "", fmt.Errorf("%w: no local player configured", ErrDeviceUnavailable)
	}

	deadline := c.clock.NewTimer(c.config.DeviceWait())
	defer deadline.Stop()

	for {
		devices, err := c.gateway.ListDevices(ctx)
		if err == nil {
			for _, device := range devices {
				if device.Name == c.config.LocalPlayerName {
					return device.ID, nil
				}
			}
		} else {
			c.logger.Debug("Device list fetch failed while waiting for local player", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrDeviceUnavailable, ctx.Err())
		case <-deadline.Chan():
			return "", fmt.Errorf("%w: local player did not register", ErrDeviceUnavailable)
		case <-c.clock.After(localPlayerProbeInterval):
		}
	}
}

// cancelRoundLocked stops the current round's countdown and poller. It is
// always called before new timers are armed so handles never stack up.
func (c *RouletteController) cancelRoundLocked() {
	if c.cancelRound != nil {
		c.cancelRound()
		c.cancelRound = nil
	}
}

func (c *RouletteController) statusLocked(message string) Status {
	status := Status{
		Phase:            c.state.Phase.String(),
		RemainingSeconds: c.state.RemainingSeconds,
		DeviceID:         c.state.SelectedDeviceID,
		NowPlaying:       c.nowPlaying,
		Message:          message,
		Round:            c.state.Round,
	}
	if c.state.CurrentGenre != nil {
		status.Genre = c.state.CurrentGenre.Name
	}
	return status
}

func (c *RouletteController) publishLocked(message string) {
	if c.sink == nil {
		return
	}
	c.sink.Publish(c.statusLocked(message))
}

// userMessage renders an error for the status surface, preferring the
// remote-provided detail of failed commands.
func userMessage(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.UserMessage()
	}
	return "Error: " + err.Error()
}
