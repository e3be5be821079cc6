package upload_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/service/archive"
	"github.com/helixa-health/scribe/pkg/service/auth"
	"github.com/helixa-health/scribe/pkg/service/upload"
)

func writeAudioFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "consult.wav")
	gt.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func TestUploadSuccess(t *testing.T) {
	audio := []byte("RIFF-test-audio")
	var gotAuth string
	var gotBody struct {
		AudioBase64 string `json:"audioBase64"`
		FileName    string `json:"fileName"`
		TemplateID  string `json:"templateId"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"success":  true,
			"fileNote": "SOAP: patient stable",
		}))
	}))
	defer srv.Close()

	var phases []types.Phase
	p := upload.New(srv.URL, auth.Static("tok-1"), upload.WithSleeper(noSleep))
	text, err := p.Upload(context.Background(), &upload.Request{
		FileURI:    writeAudioFile(t, audio),
		TemplateID: types.TemplateID("soap"),
	}, func(phase types.Phase) {
		phases = append(phases, phase)
	})

	gt.NoError(t, err)
	gt.Equal(t, text, "SOAP: patient stable")
	gt.Equal(t, gotAuth, "Bearer tok-1")
	gt.Equal(t, gotBody.AudioBase64, base64.StdEncoding.EncodeToString(audio))
	gt.Equal(t, gotBody.FileName, "consult.wav")
	gt.Equal(t, gotBody.TemplateID, "soap")
	gt.Equal(t, phases, []types.Phase{
		types.PhaseConverting,
		types.PhaseTranscribing,
		types.PhaseGenerating,
		types.PhaseComplete,
	})
}

func TestUploadResponseFallback(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
		want string
	}{
		{
			name: "prefers fileNote",
			body: map[string]any{"success": true, "fileNote": "structured", "fileNoteRaw": "raw", "text": "plain"},
			want: "structured",
		},
		{
			name: "falls back to fileNoteRaw",
			body: map[string]any{"success": true, "fileNoteRaw": "raw", "text": "plain"},
			want: "raw",
		},
		{
			name: "falls back to text",
			body: map[string]any{"success": true, "text": "plain"},
			want: "plain",
		},
		{
			name: "empty when nothing present",
			body: map[string]any{"success": true},
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gt.NoError(t, json.NewEncoder(w).Encode(tc.body))
			}))
			defer srv.Close()

			p := upload.New(srv.URL, auth.Static("tok"), upload.WithSleeper(noSleep))
			text, err := p.Upload(context.Background(), &upload.Request{
				FileURI: writeAudioFile(t, []byte("audio")),
			}, nil)
			gt.NoError(t, err)
			gt.Equal(t, text, tc.want)
		})
	}
}

func TestUploadRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{"success": true, "text": "ok"}))
	}))
	defer srv.Close()

	var delays []time.Duration
	p := upload.New(srv.URL, auth.Static("tok"),
		upload.WithInitialBackoff(100*time.Millisecond),
		upload.WithSleeper(func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)

	var phases []types.Phase
	text, err := p.Upload(context.Background(), &upload.Request{
		FileURI: writeAudioFile(t, []byte("audio")),
	}, func(phase types.Phase) {
		phases = append(phases, phase)
	})

	gt.NoError(t, err)
	gt.Equal(t, text, "ok")
	gt.Equal(t, attempts.Load(), int32(3))
	gt.Equal(t, delays, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond})
	// Retries never repeat phases: converting and transcribing fire once.
	gt.Equal(t, phases, []types.Phase{
		types.PhaseConverting,
		types.PhaseTranscribing,
		types.PhaseGenerating,
		types.PhaseComplete,
	})
}

func TestUploadStopsAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := upload.New(srv.URL, auth.Static("tok"), upload.WithSleeper(noSleep))
	var phases []types.Phase
	_, err := p.Upload(context.Background(), &upload.Request{
		FileURI: writeAudioFile(t, []byte("audio")),
	}, func(phase types.Phase) {
		phases = append(phases, phase)
	})

	gt.Error(t, err)
	gt.Equal(t, attempts.Load(), int32(3))
	gt.Equal(t, phases[len(phases)-1], types.PhaseError)
}

func TestUploadClientErrorIsTerminal(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := upload.New(srv.URL, auth.Static("tok"), upload.WithSleeper(noSleep))
	_, err := p.Upload(context.Background(), &upload.Request{
		FileURI: writeAudioFile(t, []byte("audio")),
	}, nil)

	gt.Error(t, err)
	gt.Equal(t, attempts.Load(), int32(1))

	var se *upload.StatusError
	gt.True(t, errors.As(err, &se))
	gt.Equal(t, se.Code, http.StatusUnauthorized)
}

func TestStatusErrorRetryable(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{code: 400, want: false},
		{code: 404, want: false},
		{code: 408, want: true},
		{code: 429, want: true},
		{code: 500, want: true},
		{code: 503, want: true},
	}
	for _, tc := range cases {
		se := &upload.StatusError{Code: tc.code}
		gt.Equal(t, se.Retryable(), tc.want)
	}
}

func TestUploadDomainFailureOn200(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "audio too short",
		}))
	}))
	defer srv.Close()

	p := upload.New(srv.URL, auth.Static("tok"), upload.WithSleeper(noSleep))
	_, err := p.Upload(context.Background(), &upload.Request{
		FileURI: writeAudioFile(t, []byte("audio")),
	}, nil)

	gt.Error(t, err)
	gt.Equal(t, attempts.Load(), int32(1))
}

func TestUploadFreshTokenPerAttempt(t *testing.T) {
	var tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.Header.Get("Authorization"))
		if len(tokens) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{"success": true, "text": "ok"}))
	}))
	defer srv.Close()

	var issued atomic.Int32
	source := auth.TokenSourceFunc(func(ctx context.Context) (string, error) {
		return "tok-" + string(rune('a'+issued.Add(1)-1)), nil
	})

	p := upload.New(srv.URL, source, upload.WithSleeper(noSleep))
	_, err := p.Upload(context.Background(), &upload.Request{
		FileURI: writeAudioFile(t, []byte("audio")),
	}, nil)

	gt.NoError(t, err)
	gt.Equal(t, tokens, []string{"Bearer tok-a", "Bearer tok-b"})
}

func TestUploadMissingFile(t *testing.T) {
	p := upload.New("http://unused.invalid", auth.Static("tok"), upload.WithSleeper(noSleep))

	var phases []types.Phase
	_, err := p.Upload(context.Background(), &upload.Request{
		FileURI: filepath.Join(t.TempDir(), "missing.wav"),
	}, func(phase types.Phase) {
		phases = append(phases, phase)
	})

	gt.Error(t, err)
	gt.Equal(t, phases, []types.Phase{types.PhaseConverting, types.PhaseError})
}

func TestUploadCancelSilences(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	p := upload.New(srv.URL, auth.Static("tok"), upload.WithSleeper(noSleep))

	var phases []types.Phase
	done := make(chan struct{})
	var uploadErr error
	go func() {
		defer close(done)
		_, uploadErr = p.Upload(context.Background(), &upload.Request{
			FileURI: writeAudioFile(t, []byte("audio")),
		}, func(phase types.Phase) {
			phases = append(phases, phase)
		})
	}()

	<-started
	p.Cancel()
	p.Cancel() // idempotent
	<-done

	gt.True(t, errors.Is(uploadErr, upload.ErrCancelled))
	// No terminal phase after cancellation.
	gt.Equal(t, phases, []types.Phase{types.PhaseConverting, types.PhaseTranscribing})
}

func TestUploadArchivesAudio(t *testing.T) {
	audio := []byte("archived-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{"success": true, "text": "ok"}))
	}))
	defer srv.Close()

	store := archive.NewMemory()
	p := upload.New(srv.URL, auth.Static("tok"),
		upload.WithSleeper(noSleep),
		upload.WithArchive(store),
	)
	_, err := p.Upload(context.Background(), &upload.Request{
		FileURI: writeAudioFile(t, audio),
	}, nil)

	gt.NoError(t, err)

	// The archive write is detached from the upload
	deadline := time.Now().Add(2 * time.Second)
	for store.Get("consult.wav") == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	gt.Equal(t, store.Get("consult.wav"), audio)
}

func TestTrackerProjection(t *testing.T) {
	tracker := upload.NewTracker()

	s := tracker.State()
	gt.Equal(t, s.Phase, types.PhaseIdle)
	gt.Equal(t, s.Progress, 0)
	gt.Equal(t, s.Message, "")
	gt.False(t, s.IsUploading)

	tracker.OnPhase(types.PhaseConverting)
	s = tracker.State()
	gt.Equal(t, s.Progress, 10)
	gt.Equal(t, s.Message, "Preparing audio...")
	gt.True(t, s.IsUploading)

	tracker.OnPhase(types.PhaseTranscribing)
	gt.Equal(t, tracker.State().Progress, 30)

	tracker.OnPhase(types.PhaseGenerating)
	gt.Equal(t, tracker.State().Progress, 60)

	tracker.OnPhase(types.PhaseComplete)
	s = tracker.State()
	gt.Equal(t, s.Progress, 100)
	gt.False(t, s.IsUploading)
}

func TestTrackerErrorLatch(t *testing.T) {
	tracker := upload.NewTracker()
	tracker.OnPhase(types.PhaseConverting)
	tracker.Fail("network unreachable")

	s := tracker.State()
	gt.Equal(t, s.Phase, types.PhaseError)
	gt.Equal(t, s.ErrorMessage, "network unreachable")
	gt.False(t, s.IsUploading)

	// A stale non-error event cannot clear the latched failure.
	tracker.OnPhase(types.PhaseComplete)
	gt.Equal(t, tracker.State().Phase, types.PhaseError)

	// A fresh run does.
	tracker.OnPhase(types.PhaseConverting)
	s = tracker.State()
	gt.Equal(t, s.Phase, types.PhaseConverting)
	gt.Equal(t, s.ErrorMessage, "")
}

func TestTrackerCancelResets(t *testing.T) {
	tracker := upload.NewTracker()
	tracker.OnPhase(types.PhaseTranscribing)
	tracker.Cancel()

	s := tracker.State()
	gt.Equal(t, s.Phase, types.PhaseIdle)
	gt.Equal(t, s.ErrorMessage, "")
	gt.False(t, s.IsUploading)
}
