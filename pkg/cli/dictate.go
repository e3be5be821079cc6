package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/helixa-health/scribe/pkg/cli/config"
	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/repository/memory"
	"github.com/helixa-health/scribe/pkg/service/cache"
	"github.com/helixa-health/scribe/pkg/service/upload"
	"github.com/helixa-health/scribe/pkg/usecase"
)

func cmdDictate() *cli.Command {
	var uploadCfg config.Upload
	var templatesCfg config.Templates
	var filePath string
	var patientID string
	var templateID string
	var consultation string
	var target string
	var device string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "file",
			Usage:       "Audio file to upload, deleted once the upload settles (records from the microphone when empty)",
			Sources:     cli.EnvVars("SCRIBE_DICTATE_FILE"),
			Destination: &filePath,
		},
		&cli.StringFlag{
			Name:        "patient-id",
			Usage:       "Patient the note belongs to",
			Sources:     cli.EnvVars("SCRIBE_DICTATE_PATIENT_ID"),
			Destination: &patientID,
		},
		&cli.StringFlag{
			Name:        "template",
			Usage:       "Note template ID",
			Sources:     cli.EnvVars("SCRIBE_DICTATE_TEMPLATE"),
			Destination: &templateID,
		},
		&cli.StringFlag{
			Name:        "consultation-type",
			Usage:       "Consultation type recorded in the note",
			Value:       string(types.ConsultationComprehensive),
			Sources:     cli.EnvVars("SCRIBE_DICTATE_CONSULTATION_TYPE"),
			Destination: &consultation,
		},
		&cli.StringFlag{
			Name:        "record-target",
			Usage:       "Attach the note to the consultation or the patient record",
			Value:       types.RecordTargetConsultation.String(),
			Sources:     cli.EnvVars("SCRIBE_DICTATE_RECORD_TARGET"),
			Destination: &target,
		},
		&cli.StringFlag{
			Name:        "device",
			Usage:       "ALSA capture device for inline recording",
			Value:       "default",
			Sources:     cli.EnvVars("SCRIBE_RECORD_DEVICE"),
			Destination: &device,
		},
	}
	flags = append(flags, uploadCfg.Flags()...)
	flags = append(flags, templatesCfg.Flags()...)

	return &cli.Command{
		Name:    "dictate",
		Aliases: []string{"d"},
		Usage:   "Upload a dictation and print the generated note",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			catalog, err := templatesCfg.Configure()
			if err != nil {
				return err
			}
			tmpl, err := resolveTemplate(catalog, templateID)
			if err != nil {
				return err
			}

			recordTarget, err := types.ParseRecordTarget(target)
			if err != nil {
				return goerr.Wrap(err, "invalid --record-target")
			}

			rec, err := resolveRecording(ctx, filePath, device)
			if err != nil {
				return err
			}

			pipeline, err := uploadCfg.ConfigurePipeline(ctx)
			if err != nil {
				return err
			}

			uc := usecase.New(memory.New(), cache.NewStore(), usecase.WithPipeline(pipeline))
			tracker := upload.NewTracker()

			note, err := uc.Dictation.Dictate(ctx, &usecase.DictationInput{
				Recording:        rec,
				TemplateID:       tmpl.ID,
				PatientID:        types.PatientID(patientID),
				ConsultationType: types.ConsultationType(consultation),
				RecordTarget:     recordTarget,
			}, func(phase types.Phase) {
				tracker.OnPhase(phase)
				state := tracker.State()
				fmt.Printf("\r\033[K%s %3d%%", color.CyanString(state.Message), state.Progress)
			})
			fmt.Print("\r\033[K")
			if err != nil {
				return err
			}

			fmt.Println(color.GreenString("Note generated (template %s):", tmpl.ID))
			fmt.Println(note)
			return nil
		},
	}
}

// resolveTemplate picks the named template, or the catalog default when no
// name was given.
func resolveTemplate(catalog *model.TemplateCatalog, id string) (*model.Template, error) {
	if id == "" {
		return catalog.Default()
	}
	return catalog.Find(types.TemplateID(id))
}

// resolveRecording wraps an existing audio file, or records one interactively
// when no file was given.
func resolveRecording(ctx context.Context, filePath, device string) (*model.Recording, error) {
	if filePath == "" {
		return recordInteractive(ctx, device, "")
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read audio file", goerr.V("path", filePath))
	}
	if info.IsDir() {
		return nil, goerr.New("audio path is a directory", goerr.V("path", filePath))
	}

	return &model.Recording{Path: filePath}, nil
}
