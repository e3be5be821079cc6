package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/service/recorder"
	"github.com/helixa-health/scribe/pkg/utils/logging"
)

func cmdRecord() *cli.Command {
	var device string
	var outDir string

	return &cli.Command{
		Name:    "record",
		Aliases: []string{"r"},
		Usage:   "Record audio from the microphone until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "device",
				Usage:       "ALSA capture device",
				Value:       "default",
				Sources:     cli.EnvVars("SCRIBE_RECORD_DEVICE"),
				Destination: &device,
			},
			&cli.StringFlag{
				Name:        "output-dir",
				Usage:       "Directory for recorded files (temp dir when empty)",
				Sources:     cli.EnvVars("SCRIBE_RECORD_OUTPUT_DIR"),
				Destination: &outDir,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			rec, err := recordInteractive(ctx, device, outDir)
			if err != nil {
				return err
			}

			fmt.Println(color.GreenString("Saved recording: %s (%s)", rec.Path, rec.Duration.Round(time.Second)))
			return nil
		},
	}
}

// recordInteractive captures audio with a live terminal level meter until the
// user sends SIGINT, then finalizes and returns the recording.
func recordInteractive(ctx context.Context, device, outDir string) (*model.Recording, error) {
	logger := logging.From(ctx)

	opts := []recorder.AlsaOption{recorder.WithDevice(device)}
	if outDir != "" {
		opts = append(opts, recorder.WithDir(outDir))
	}

	session, err := recorder.Start(ctx, recorder.NewAlsaDevice(opts...))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to start recording")
	}

	stopCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println(color.CyanString("Recording... press Ctrl-C to stop"))

	ticker := time.NewTicker(recorder.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCtx.Done():
			fmt.Print("\r\033[K")

			// Stop, not Cancel: an interrupt means the user wants the audio.
			rec, err := session.Stop(context.WithoutCancel(ctx))
			if err != nil {
				return nil, goerr.Wrap(err, "failed to finalize recording")
			}
			return rec, nil

		case <-ticker.C:
			status, err := session.Status(ctx)
			if err != nil {
				logger.Warn("failed to poll recorder status", "error", err.Error())
				continue
			}
			fmt.Printf("\r\033[K%s", renderMeter(status))
		}
	}
}

// renderMeter draws a one-line level meter from the clamped dBFS metering
// value, mapping [-60, 0] onto the visible bar.
func renderMeter(status *model.RecorderStatus) string {
	const width = 30

	level := status.Metering
	if level < -60 {
		level = -60
	}
	filled := int((level + 60) / 60 * width)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	elapsed := time.Duration(status.DurationMillis) * time.Millisecond

	return fmt.Sprintf("[%s] %6.1f dB  %s",
		color.HiGreenString(bar[:filled])+bar[filled:],
		status.Metering,
		elapsed.Round(time.Second))
}
