package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
)

// MeterFloor and MeterCeiling bound the dBFS metering value reported by
// Status. Values outside the range are clamped before reaching callers.
const (
	MeterFloor   = -160.0
	MeterCeiling = 0.0
)

// PollInterval is the cadence at which callers are expected to poll Status
// while a session is active.
const PollInterval = 80 * time.Millisecond

// Device abstracts the OS audio capture subsystem
type Device interface {
	// RequestPermission asks for microphone access. Recording must not be
	// attempted when the result is false.
	RequestPermission(ctx context.Context) (bool, error)

	// Start begins capture. Fails if the device is already capturing.
	Start(ctx context.Context) error

	// Pause suspends capture, preserving audio recorded so far
	Pause(ctx context.Context) error

	// Resume continues a paused capture
	Resume(ctx context.Context) error

	// Stop finalizes the capture and returns the recording
	Stop(ctx context.Context) (*model.Recording, error)

	// Cancel finalizes and discards the capture
	Cancel(ctx context.Context) error

	// Status reports the current capture state and metering
	Status(ctx context.Context) (*model.RecorderStatus, error)
}

type sessionState int

const (
	stateRecording sessionState = iota
	statePaused
	stateClosed
)

// Session is the owned handle for one active recording. It exists only while
// a capture is open, which enforces the single-active-session invariant by
// construction; pause/resume/stop/cancel are methods on the handle rather
// than operations on shared recorder state.
type Session struct {
	mu    sync.Mutex
	id    types.SessionID
	dev   Device
	state sessionState
}

// Start requests permission and begins a capture session. Permission denial
// is a terminal local error; no capture is attempted.
func Start(ctx context.Context, dev Device) (*Session, error) {
	granted, err := dev.RequestPermission(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to request microphone permission")
	}
	if !granted {
		return nil, goerr.New("microphone permission denied")
	}

	if err := dev.Start(ctx); err != nil {
		return nil, goerr.Wrap(err, "failed to start recording")
	}

	return &Session{
		id:    types.NewSessionID(),
		dev:   dev,
		state: stateRecording,
	}, nil
}

// ID returns the session identifier
func (s *Session) ID() types.SessionID {
	return s.id
}

// Pause suspends capture. Valid only while recording.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateRecording {
		return goerr.New("session is not recording", goerr.V("sessionID", s.id))
	}
	if err := s.dev.Pause(ctx); err != nil {
		return goerr.Wrap(err, "failed to pause recording")
	}
	s.state = statePaused
	return nil
}

// Resume continues a paused capture. Valid only while paused.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != statePaused {
		return goerr.New("session is not paused", goerr.V("sessionID", s.id))
	}
	if err := s.dev.Resume(ctx); err != nil {
		return goerr.Wrap(err, "failed to resume recording")
	}
	s.state = stateRecording
	return nil
}

// Stop finalizes the capture and returns the recording. Returns nil when the
// session is already closed (nothing was recording).
func (s *Session) Stop(ctx context.Context) (*model.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return nil, nil
	}
	s.state = stateClosed

	rec, err := s.dev.Stop(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to stop recording", goerr.V("sessionID", s.id))
	}
	return rec, nil
}

// Cancel finalizes and discards the capture. Idempotent; cancelling a closed
// session is a no-op.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return nil
	}
	s.state = stateClosed

	if err := s.dev.Cancel(ctx); err != nil {
		return goerr.Wrap(err, "failed to cancel recording", goerr.V("sessionID", s.id))
	}
	return nil
}

// Status reports the capture state with metering clamped to
// [MeterFloor, MeterCeiling]. Closed sessions report a quiet, non-recording
// status rather than an error so poll loops can wind down naturally.
func (s *Session) Status(ctx context.Context) (*model.RecorderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return &model.RecorderStatus{Metering: MeterFloor}, nil
	}

	st, err := s.dev.Status(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get recorder status", goerr.V("sessionID", s.id))
	}

	clamped := *st
	if clamped.Metering < MeterFloor {
		clamped.Metering = MeterFloor
	}
	if clamped.Metering > MeterCeiling {
		clamped.Metering = MeterCeiling
	}
	if s.state == statePaused {
		// Metering updates stop while paused; captured audio is preserved.
		clamped.IsRecording = false
		clamped.Metering = MeterFloor
	}
	return &clamped, nil
}
