package usecase

import (
	"time"

	"github.com/helixa-health/scribe/pkg/domain/interfaces"
	"github.com/helixa-health/scribe/pkg/service/cache"
	"github.com/helixa-health/scribe/pkg/service/chat"
	"github.com/helixa-health/scribe/pkg/service/upload"
)

type UseCases struct {
	repo  interfaces.Repository
	cache *cache.Store
	clock func() time.Time

	Notes     *NoteUseCase
	Patients  *PatientUseCase
	Dictation *DictationUseCase
	Chat      *ChatUseCase
}

type Option func(*UseCases)

// WithClock overrides the timestamp source used for optimistic entities
func WithClock(clock func() time.Time) Option {
	return func(uc *UseCases) {
		uc.clock = clock
	}
}

// WithPipeline enables the dictation usecase
func WithPipeline(pipeline *upload.Pipeline) Option {
	return func(uc *UseCases) {
		uc.Dictation = &DictationUseCase{pipeline: pipeline}
	}
}

// WithChatClient enables the chat usecase
func WithChatClient(client *chat.Client) Option {
	return func(uc *UseCases) {
		uc.Chat = &ChatUseCase{client: client}
	}
}

func New(repo interfaces.Repository, store *cache.Store, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:  repo,
		cache: store,
		clock: time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Notes = NewNoteUseCase(repo, store, uc.clock)
	uc.Patients = NewPatientUseCase(repo, store, uc.clock)
	if uc.Dictation != nil {
		uc.Dictation.cache = store
	}

	return uc
}
