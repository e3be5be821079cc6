package recorder_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/service/recorder"
)

type fakeDevice struct {
	permission bool
	permErr    error
	capturing  bool
	metering   float64
	recording  *model.Recording
	cancelled  bool
	stopped    bool
}

func (d *fakeDevice) RequestPermission(ctx context.Context) (bool, error) {
	return d.permission, d.permErr
}

func (d *fakeDevice) Start(ctx context.Context) error {
	d.capturing = true
	return nil
}

func (d *fakeDevice) Pause(ctx context.Context) error  { return nil }
func (d *fakeDevice) Resume(ctx context.Context) error { return nil }

func (d *fakeDevice) Stop(ctx context.Context) (*model.Recording, error) {
	d.capturing = false
	d.stopped = true
	return d.recording, nil
}

func (d *fakeDevice) Cancel(ctx context.Context) error {
	d.capturing = false
	d.cancelled = true
	return nil
}

func (d *fakeDevice) Status(ctx context.Context) (*model.RecorderStatus, error) {
	return &model.RecorderStatus{
		IsRecording:    d.capturing,
		DurationMillis: 1200,
		Metering:       d.metering,
	}, nil
}

func TestStartDeniedPermission(t *testing.T) {
	dev := &fakeDevice{permission: false}
	_, err := recorder.Start(context.Background(), dev)
	gt.Error(t, err)
	gt.Bool(t, dev.capturing).False()
}

func TestStartStopReturnsRecording(t *testing.T) {
	dev := &fakeDevice{
		permission: true,
		recording:  &model.Recording{Path: "/tmp/rec.wav"},
	}
	s, err := recorder.Start(context.Background(), dev)
	gt.NoError(t, err).Required()

	rec, err := s.Stop(context.Background())
	gt.NoError(t, err).Required()
	gt.Value(t, rec.Path).Equal("/tmp/rec.wav")
	gt.Bool(t, dev.stopped).True()
}

func TestStopOnClosedSessionReturnsNil(t *testing.T) {
	dev := &fakeDevice{permission: true, recording: &model.Recording{Path: "/tmp/rec.wav"}}
	s, err := recorder.Start(context.Background(), dev)
	gt.NoError(t, err).Required()

	_, err = s.Stop(context.Background())
	gt.NoError(t, err)

	rec, err := s.Stop(context.Background())
	gt.NoError(t, err)
	gt.Value(t, rec).Nil()
}

func TestPauseResumeTransitions(t *testing.T) {
	dev := &fakeDevice{permission: true}
	s, err := recorder.Start(context.Background(), dev)
	gt.NoError(t, err).Required()
	ctx := context.Background()

	// Cannot resume while recording
	gt.Error(t, s.Resume(ctx))

	gt.NoError(t, s.Pause(ctx))

	// Cannot pause twice
	gt.Error(t, s.Pause(ctx))

	// Metering is silenced while paused
	st, err := s.Status(ctx)
	gt.NoError(t, err).Required()
	gt.Bool(t, st.IsRecording).False()
	gt.Value(t, st.Metering).Equal(recorder.MeterFloor)

	gt.NoError(t, s.Resume(ctx))
}

func TestCancelIsIdempotent(t *testing.T) {
	dev := &fakeDevice{permission: true}
	s, err := recorder.Start(context.Background(), dev)
	gt.NoError(t, err).Required()
	ctx := context.Background()

	gt.NoError(t, s.Cancel(ctx))
	gt.NoError(t, s.Cancel(ctx))
	gt.Bool(t, dev.cancelled).True()

	// A closed session reports quiet status, not an error
	st, err := s.Status(ctx)
	gt.NoError(t, err).Required()
	gt.Bool(t, st.IsRecording).False()
}

func TestStatusClampsMetering(t *testing.T) {
	dev := &fakeDevice{permission: true, metering: -500}
	s, err := recorder.Start(context.Background(), dev)
	gt.NoError(t, err).Required()

	st, err := s.Status(context.Background())
	gt.NoError(t, err).Required()
	gt.Value(t, st.Metering).Equal(recorder.MeterFloor)

	dev.metering = 10
	st, err = s.Status(context.Background())
	gt.NoError(t, err).Required()
	gt.Value(t, st.Metering).Equal(recorder.MeterCeiling)
}

// stubCapture writes a shell script standing in for arecord: it creates the
// output file (last argument) and exits 1 when interrupted, like a capture
// process killed mid-write.
func stubCapture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.sh")
	script := "#!/bin/sh\nfor a; do out=$a; done\n: > \"$out\"\ntrap 'exit 1' INT\nwhile :; do sleep 0.01; done\n"
	gt.NoError(t, os.WriteFile(path, []byte(script), 0700))
	return path
}

func TestAlsaDeviceStopToleratesSignalExit(t *testing.T) {
	dev := recorder.NewAlsaDevice(
		recorder.WithBinary(stubCapture(t)),
		recorder.WithDir(t.TempDir()),
	)
	ctx := context.Background()

	gt.NoError(t, dev.Start(ctx)).Required()
	time.Sleep(50 * time.Millisecond)

	rec, err := dev.Stop(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, rec.Path).NotEqual("")

	_, statErr := os.Stat(rec.Path)
	gt.NoError(t, statErr)
}
