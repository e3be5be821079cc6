package recorder

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/helixa-health/scribe/pkg/domain/model"
)

const (
	wavHeaderSize = 44
	// 16-bit mono 16kHz, the format requested from arecord below
	bytesPerSecond = 32000
	meterWindow    = 1600 // samples (~100ms)
)

// AlsaDevice captures audio by running arecord. Pause and resume are
// implemented with SIGSTOP/SIGCONT on the capture process; metering is
// computed from the tail of the growing WAV file.
type AlsaDevice struct {
	mu       sync.Mutex
	binary   string
	device   string
	dir      string
	path     string
	cmd      *exec.Cmd
	started  time.Time
	pausedAt time.Time
	paused   time.Duration
}

// AlsaOption customizes the device
type AlsaOption func(*AlsaDevice)

// WithBinary overrides the capture binary path (defaults to arecord)
func WithBinary(path string) AlsaOption {
	return func(d *AlsaDevice) {
		d.binary = path
	}
}

// WithDevice selects the ALSA capture device (defaults to "default")
func WithDevice(name string) AlsaOption {
	return func(d *AlsaDevice) {
		d.device = name
	}
}

// WithDir overrides the directory recordings are written to
func WithDir(dir string) AlsaOption {
	return func(d *AlsaDevice) {
		d.dir = dir
	}
}

// NewAlsaDevice creates an arecord-backed capture device
func NewAlsaDevice(opts ...AlsaOption) *AlsaDevice {
	d := &AlsaDevice{
		binary: "arecord",
		device: "default",
		dir:    os.TempDir(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ Device = &AlsaDevice{}

// RequestPermission checks that the capture binary is available. Desktop
// Linux has no runtime microphone permission prompt; a missing binary is the
// equivalent denial condition.
func (d *AlsaDevice) RequestPermission(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath(d.binary); err != nil {
		return false, nil
	}
	return true, nil
}

func (d *AlsaDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd != nil {
		return goerr.New("device is already capturing")
	}

	path := filepath.Join(d.dir, "scribe-"+uuid.New().String()+".wav")

	//nolint:gosec // binary is operator-configured
	cmd := exec.Command(d.binary, "-q", "-D", d.device, "-f", "S16_LE", "-c", "1", "-r", "16000", "-t", "wav", path)
	if err := cmd.Start(); err != nil {
		return goerr.Wrap(err, "failed to start capture process", goerr.V("binary", d.binary))
	}

	d.cmd = cmd
	d.path = path
	d.started = time.Now()
	d.paused = 0
	d.pausedAt = time.Time{}
	return nil
}

func (d *AlsaDevice) Pause(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil {
		return goerr.New("device is not capturing")
	}
	if err := d.cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		return goerr.Wrap(err, "failed to pause capture process")
	}
	d.pausedAt = time.Now()
	return nil
}

func (d *AlsaDevice) Resume(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil {
		return goerr.New("device is not capturing")
	}
	if err := d.cmd.Process.Signal(syscall.SIGCONT); err != nil {
		return goerr.Wrap(err, "failed to resume capture process")
	}
	if !d.pausedAt.IsZero() {
		d.paused += time.Since(d.pausedAt)
		d.pausedAt = time.Time{}
	}
	return nil
}

func (d *AlsaDevice) Stop(ctx context.Context) (*model.Recording, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil {
		return nil, goerr.New("device is not capturing")
	}

	duration := d.elapsedLocked()
	if err := d.terminateLocked(); err != nil {
		return nil, err
	}

	path := d.path
	d.resetLocked()

	if _, err := os.Stat(path); err != nil {
		return nil, goerr.Wrap(err, "capture file missing", goerr.V("path", path))
	}

	return &model.Recording{
		Path:     path,
		Duration: duration,
	}, nil
}

func (d *AlsaDevice) Cancel(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil {
		return nil
	}

	if err := d.terminateLocked(); err != nil {
		return err
	}

	path := d.path
	d.resetLocked()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return goerr.Wrap(err, "failed to discard capture file", goerr.V("path", path))
	}
	return nil
}

func (d *AlsaDevice) Status(ctx context.Context) (*model.RecorderStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil {
		return &model.RecorderStatus{Metering: MeterFloor}, nil
	}

	return &model.RecorderStatus{
		IsRecording:    d.pausedAt.IsZero(),
		DurationMillis: d.elapsedLocked().Milliseconds(),
		Metering:       meterFromFile(d.path),
	}, nil
}

func (d *AlsaDevice) elapsedLocked() time.Duration {
	elapsed := time.Since(d.started) - d.paused
	if !d.pausedAt.IsZero() {
		elapsed -= time.Since(d.pausedAt)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}

func (d *AlsaDevice) terminateLocked() error {
	// A stopped process cannot handle SIGINT; wake it first.
	_ = d.cmd.Process.Signal(syscall.SIGCONT)
	if err := d.cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = d.cmd.Process.Kill()
	}
	if err := d.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return goerr.Wrap(err, "capture process did not exit cleanly")
		}
	}
	return nil
}

func (d *AlsaDevice) resetLocked() {
	d.cmd = nil
	d.path = ""
	d.started = time.Time{}
	d.pausedAt = time.Time{}
	d.paused = 0
}

// meterFromFile computes a dBFS-like level from the most recent samples of
// the capture file. Read failures report the floor; metering is UI feedback
// only and never part of the durable record.
func meterFromFile(path string) float64 {
	f, err := os.Open(path) // #nosec G304 -- path is generated by this package
	if err != nil {
		return MeterFloor
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() <= wavHeaderSize {
		return MeterFloor
	}

	window := int64(meterWindow * 2)
	offset := info.Size() - window
	if offset < wavHeaderSize {
		offset = wavHeaderSize
		window = info.Size() - wavHeaderSize
	}

	buf := make([]byte, window)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return MeterFloor
	}

	var sum float64
	n := len(buf) / 2
	if n == 0 {
		return MeterFloor
	}
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(buf[i*2:])))
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	if rms < 1 {
		return MeterFloor
	}
	return 20 * math.Log10(rms/32768.0)
}
