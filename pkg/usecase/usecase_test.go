package usecase_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/helixa-health/scribe/pkg/domain/interfaces"
	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/repository/memory"
	"github.com/helixa-health/scribe/pkg/service/auth"
	"github.com/helixa-health/scribe/pkg/service/cache"
	"github.com/helixa-health/scribe/pkg/service/chat"
	"github.com/helixa-health/scribe/pkg/service/upload"
	"github.com/helixa-health/scribe/pkg/usecase"
)

// countingRepo counts note list fetches to observe cache hits
type countingRepo struct {
	interfaces.Repository
	noteLists atomic.Int32
}

func (x *countingRepo) Note() interfaces.NoteRepository {
	return &countingNoteRepo{NoteRepository: x.Repository.Note(), counter: &x.noteLists}
}

type countingNoteRepo struct {
	interfaces.NoteRepository
	counter *atomic.Int32
}

func (x *countingNoteRepo) List(ctx context.Context, patientID types.PatientID, opts ...interfaces.ListOption) (*model.NotePage, error) {
	x.counter.Add(1)
	return x.NoteRepository.List(ctx, patientID, opts...)
}

// failingRepo rejects all mutations, leaving reads intact
type failingRepo struct {
	interfaces.Repository
}

func (x *failingRepo) Note() interfaces.NoteRepository {
	return &failingNoteRepo{NoteRepository: x.Repository.Note()}
}

func (x *failingRepo) Patient() interfaces.PatientRepository {
	return &failingPatientRepo{PatientRepository: x.Repository.Patient()}
}

type failingNoteRepo struct {
	interfaces.NoteRepository
}

func (x *failingNoteRepo) Create(ctx context.Context, n *model.Note) (*model.Note, error) {
	return nil, goerr.New("server rejected create")
}

func (x *failingNoteRepo) Update(ctx context.Context, n *model.Note) (*model.Note, error) {
	return nil, goerr.New("server rejected update")
}

func (x *failingNoteRepo) Delete(ctx context.Context, id types.NoteID) error {
	return goerr.New("server rejected delete")
}

type failingPatientRepo struct {
	interfaces.PatientRepository
}

func (x *failingPatientRepo) Create(ctx context.Context, p *model.Patient) (*model.Patient, error) {
	return nil, goerr.New("server rejected create")
}

func seedPatient(t *testing.T, repo interfaces.Repository) *model.Patient {
	t.Helper()
	created, err := repo.Patient().Create(context.Background(), &model.Patient{
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	gt.NoError(t, err)
	return created
}

func seedNote(t *testing.T, repo interfaces.Repository, patientID types.PatientID, title string) *model.Note {
	t.Helper()
	created, err := repo.Note().Create(context.Background(), &model.Note{
		PatientID: patientID,
		Title:     title,
		Text:      "body of " + title,
		Type:      types.ConsultationComprehensive,
	})
	gt.NoError(t, err)
	return created
}

func TestNoteListCachesFirstPage(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{Repository: memory.New()}
	patient := seedPatient(t, repo)
	seedNote(t, repo, patient.ID, "first visit")

	uc := usecase.New(repo, cache.NewStore())

	page1, err := uc.Notes.List(ctx, patient.ID)
	gt.NoError(t, err)
	gt.Equal(t, page1.TotalCount, 1)
	gt.Equal(t, repo.noteLists.Load(), int32(1))

	// Second read is served from cache.
	page2, err := uc.Notes.List(ctx, patient.ID)
	gt.NoError(t, err)
	gt.Equal(t, page2.TotalCount, 1)
	gt.Equal(t, repo.noteLists.Load(), int32(1))

	// Cursor queries bypass the cache.
	_, err = uc.Notes.List(ctx, patient.ID, interfaces.WithCursor(page1.NextCursor))
	gt.NoError(t, err)
	gt.Equal(t, repo.noteLists.Load(), int32(2))
}

func TestNoteCreateInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{Repository: memory.New()}
	patient := seedPatient(t, repo)

	uc := usecase.New(repo, cache.NewStore())
	_, err := uc.Notes.List(ctx, patient.ID)
	gt.NoError(t, err)
	gt.Equal(t, repo.noteLists.Load(), int32(1))

	created, err := uc.Notes.Create(ctx, &model.Note{
		PatientID: patient.ID,
		Title:     "dictated note",
	})
	gt.NoError(t, err)
	gt.Bool(t, created.ID.IsTemp()).False()

	// The settle invalidated the list; the next read refetches and carries
	// only server-assigned IDs.
	page, err := uc.Notes.List(ctx, patient.ID)
	gt.NoError(t, err)
	gt.Equal(t, repo.noteLists.Load(), int32(2))
	gt.Equal(t, page.TotalCount, 1)
	gt.Bool(t, page.Notes[0].ID.IsTemp()).False()
}

func TestNoteCreateRollbackOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	patient := seedPatient(t, repo)
	seedNote(t, repo, patient.ID, "existing")

	store := cache.NewStore()
	healthy := usecase.New(repo, store)
	before, err := healthy.Notes.List(ctx, patient.ID)
	gt.NoError(t, err)

	broken := usecase.New(&failingRepo{Repository: repo}, store)
	_, err = broken.Notes.Create(ctx, &model.Note{PatientID: patient.ID, Title: "doomed"})
	gt.Error(t, err)

	// The cached list after rejection matches the pre-optimistic state
	// exactly; no temp entity or count drift survives.
	v, ok := store.Get(cache.NoteListKey(patient.ID.String()))
	gt.True(t, ok)
	after := v.(*model.NotePage)
	gt.Equal(t, after, before)
}

func TestNoteDeleteRollbackKeepsCounts(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	patient := seedPatient(t, repo)
	note := seedNote(t, repo, patient.ID, "keep me")

	store := cache.NewStore()
	healthy := usecase.New(repo, store)
	_, err := healthy.Notes.List(ctx, patient.ID)
	gt.NoError(t, err)
	_, err = healthy.Patients.List(ctx)
	gt.NoError(t, err)

	broken := usecase.New(&failingRepo{Repository: repo}, store)
	gt.Error(t, broken.Notes.Delete(ctx, patient.ID, note.ID))

	v, ok := store.Get(cache.NoteListKey(patient.ID.String()))
	gt.True(t, ok)
	notePage := v.(*model.NotePage)
	gt.Equal(t, len(notePage.Notes), 1)
	gt.Equal(t, notePage.TotalCount, len(notePage.Notes))

	v, ok = store.Get(cache.PatientListKey())
	gt.True(t, ok)
	patientPage := v.(*model.PatientPage)
	gt.Equal(t, patientPage.Patients[0].NoteCount, 1)
}

func TestPatientCreateRollbackOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedPatient(t, repo)

	store := cache.NewStore()
	healthy := usecase.New(repo, store)
	before, err := healthy.Patients.List(ctx)
	gt.NoError(t, err)

	broken := usecase.New(&failingRepo{Repository: repo}, store)
	_, err = broken.Patients.Create(ctx, &model.Patient{FirstName: "Grace"})
	gt.Error(t, err)

	v, ok := store.Get(cache.PatientListKey())
	gt.True(t, ok)
	gt.Equal(t, v.(*model.PatientPage), before)
}

func TestPatientUpdateOptimistic(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	patient := seedPatient(t, repo)

	uc := usecase.New(repo, cache.NewStore())
	_, err := uc.Patients.List(ctx)
	gt.NoError(t, err)

	renamed := patient.Clone()
	renamed.FirstName = "Augusta"
	renamed.Name = ""
	updated, err := uc.Patients.Update(ctx, renamed)
	gt.NoError(t, err)
	gt.Equal(t, updated.FirstName, "Augusta")

	page, err := uc.Patients.List(ctx)
	gt.NoError(t, err)
	gt.Equal(t, page.Patients[0].FirstName, "Augusta")
}

func TestDictation(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"fileNote":"Note body"}`))
	}))
	defer srv.Close()

	repo := memory.New()
	patient := seedPatient(t, repo)

	store := cache.NewStore()
	pipeline := upload.New(srv.URL, auth.Static("tok"))
	uc := usecase.New(repo, store, usecase.WithPipeline(pipeline))

	_, err := uc.Notes.List(ctx, patient.ID)
	gt.NoError(t, err)
	gt.True(t, store.Fresh(cache.NoteListKey(patient.ID.String())))

	path := filepath.Join(t.TempDir(), "rec.wav")
	gt.NoError(t, os.WriteFile(path, []byte("audio"), 0600))

	var phases []types.Phase
	text, err := uc.Dictation.Dictate(ctx, &usecase.DictationInput{
		Recording:        &model.Recording{Path: path, Duration: 2 * time.Second},
		TemplateID:       types.TemplateID("standard"),
		PatientID:        patient.ID,
		ConsultationType: types.ConsultationComprehensive,
		RecordTarget:     types.RecordTargetConsultation,
	}, func(phase types.Phase) {
		phases = append(phases, phase)
	})
	gt.NoError(t, err)

	gt.Equal(t, text, "Note body")
	gt.Equal(t, phases, []types.Phase{
		types.PhaseConverting,
		types.PhaseTranscribing,
		types.PhaseGenerating,
		types.PhaseComplete,
	})

	// Settled: local audio discarded, note list marked for refetch.
	_, statErr := os.Stat(path)
	gt.True(t, os.IsNotExist(statErr))
	gt.False(t, store.Fresh(cache.NoteListKey(patient.ID.String())))
}

func TestChatTranscript(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, line := range []string{
			"data: {\"content\":\"Hello \"}\n",
			"data: {\"content\":\"doctor.\"}\n",
			"data: {\"success\":true}\n",
		} {
			_, _ = w.Write([]byte(line))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	client := chat.NewClient(srv.URL, auth.Static("tok"))
	uc := usecase.New(memory.New(), cache.NewStore(), usecase.WithChatClient(client))

	var updates int
	gt.NoError(t, uc.Chat.Send(ctx, "Hi", "", func() { updates++ }))

	messages := uc.Chat.Messages()
	gt.Equal(t, len(messages), 2)
	gt.Equal(t, messages[0].Role, types.ChatRoleUser)
	gt.Equal(t, messages[0].Content, "Hi")
	gt.Equal(t, messages[1].Role, types.ChatRoleAssistant)
	gt.Equal(t, messages[1].Content, "Hello doctor.")
	gt.Bool(t, messages[1].IsStreaming()).False()
	gt.True(t, updates >= 3)
}

func TestChatSupersededSendDropsPlaceholder(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gt.True(t, len(body.Messages) > 0)
		flusher := w.(http.Flusher)

		if body.Messages[len(body.Messages)-1].Content == "first question" {
			_, _ = w.Write([]byte("data: {\"content\":\"partial\"}\n"))
			flusher.Flush()
			// Stall until the superseding Send aborts this stream
			<-r.Context().Done()
			return
		}
		for _, line := range []string{
			"data: {\"content\":\"second answer\"}\n",
			"data: {\"success\":true}\n",
		} {
			_, _ = w.Write([]byte(line))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	client := chat.NewClient(srv.URL, auth.Static("tok"))
	uc := usecase.New(memory.New(), cache.NewStore(), usecase.WithChatClient(client))

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- uc.Chat.Send(ctx, "first question", "", nil)
	}()

	// Wait until the first reply is mid-stream before superseding it
	deadline := time.Now().Add(2 * time.Second)
	for {
		midStream := false
		for _, m := range uc.Chat.Messages() {
			if m.IsStreaming() && m.Content == "partial" {
				midStream = true
			}
		}
		if midStream {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first stream never delivered a chunk")
		}
		time.Sleep(5 * time.Millisecond)
	}

	gt.NoError(t, uc.Chat.Send(ctx, "second question", "", nil))
	gt.NoError(t, <-firstDone)

	messages := uc.Chat.Messages()
	gt.Equal(t, len(messages), 3)
	for _, m := range messages {
		gt.Bool(t, m.IsStreaming()).False()
	}
	gt.Equal(t, messages[0].Content, "first question")
	gt.Equal(t, messages[1].Content, "second question")
	gt.Equal(t, messages[2].Role, types.ChatRoleAssistant)
	gt.Equal(t, messages[2].Content, "second answer")
}

func TestChatStreamFailureDropsPlaceholder(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: {\"error\":\"model unavailable\"}\n"))
	}))
	defer srv.Close()

	client := chat.NewClient(srv.URL, auth.Static("tok"))
	uc := usecase.New(memory.New(), cache.NewStore(), usecase.WithChatClient(client))

	gt.Error(t, uc.Chat.Send(ctx, "Hi", "", nil))

	messages := uc.Chat.Messages()
	gt.Equal(t, len(messages), 1)
	gt.Equal(t, messages[0].Role, types.ChatRoleUser)
}
