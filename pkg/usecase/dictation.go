package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"

	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/service/cache"
	"github.com/helixa-health/scribe/pkg/service/upload"
	"github.com/helixa-health/scribe/pkg/utils/safe"
)

// DictationUseCase turns a finished recording into a generated note via the
// upload pipeline. The local audio file is discarded once the upload settles,
// whatever the outcome; the pipeline archives a copy first when configured.
type DictationUseCase struct {
	pipeline *upload.Pipeline
	cache    *cache.Store
}

// DictationInput describes one dictation run
type DictationInput struct {
	Recording        *model.Recording
	TemplateID       types.TemplateID
	PatientID        types.PatientID
	ConsultationType types.ConsultationType
	RecordTarget     types.RecordTarget
}

// Dictate uploads the recording and returns the generated note text. The
// patient's cached note list is invalidated on success so the next read picks
// up the server-side note. A cancelled run returns upload.ErrCancelled.
func (uc *DictationUseCase) Dictate(ctx context.Context, input *DictationInput, onPhase upload.PhaseFunc) (string, error) {
	if input.Recording == nil || input.Recording.Path == "" {
		return "", goerr.New("recording is required")
	}
	if err := input.TemplateID.Validate(); err != nil {
		return "", err
	}

	defer safe.Remove(ctx, input.Recording.Path)

	text, err := uc.pipeline.Upload(ctx, &upload.Request{
		FileURI:          input.Recording.Path,
		TemplateID:       input.TemplateID,
		PatientID:        input.PatientID,
		ConsultationType: input.ConsultationType,
		RecordTarget:     input.RecordTarget,
	}, onPhase)
	if err != nil {
		if errors.Is(err, upload.ErrCancelled) {
			return "", err
		}
		return "", goerr.Wrap(err, "dictation upload failed",
			goerr.V("patientID", input.PatientID),
			goerr.V("templateID", input.TemplateID),
		)
	}

	if uc.cache != nil && input.PatientID != "" {
		uc.cache.Invalidate(cache.NoteListKey(input.PatientID.String()))
	}
	return text, nil
}

// Cancel aborts the in-flight dictation upload, if any
func (uc *DictationUseCase) Cancel() {
	uc.pipeline.Cancel()
}
