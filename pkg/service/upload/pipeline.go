package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/service/archive"
	"github.com/helixa-health/scribe/pkg/service/auth"
	"github.com/helixa-health/scribe/pkg/utils/async"
	"github.com/helixa-health/scribe/pkg/utils/logging"
)

const (
	defaultMaxRetries     = 2
	defaultInitialBackoff = 1 * time.Second
	defaultRequestTimeout = 3 * time.Minute
)

// Request describes one dictation upload. It is immutable; the pipeline does
// not retain it after the call resolves.
type Request struct {
	FileURI          string
	TemplateID       types.TemplateID
	PatientID        types.PatientID
	ConsultationType types.ConsultationType
	RecordTarget     types.RecordTarget
}

// PhaseFunc observes pipeline phase transitions. It is invoked synchronously,
// exactly once per transition, strictly in pipeline order.
type PhaseFunc func(phase types.Phase)

// Pipeline turns a local recording into a generated note document via the
// remote processing endpoint, with bounded retry. A Pipeline is single-flight:
// a new Upload on the same instance cancels the prior in-flight attempt.
type Pipeline struct {
	endpoint       string
	httpClient     *http.Client
	tokens         auth.TokenSource
	archiveStore   archive.Store
	maxRetries     int
	initialBackoff time.Duration
	requestTimeout time.Duration
	sleeper        func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Option customizes the pipeline
type Option func(*Pipeline)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(p *Pipeline) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithMaxRetries overrides how many additional attempts follow a retryable
// failure (defaults to 2)
func WithMaxRetries(n int) Option {
	return func(p *Pipeline) {
		p.maxRetries = n
	}
}

// WithInitialBackoff overrides the base backoff delay; attempt n waits
// initial * 2^n
func WithInitialBackoff(d time.Duration) Option {
	return func(p *Pipeline) {
		p.initialBackoff = d
	}
}

// WithRequestTimeout overrides the per-attempt request ceiling (defaults to
// 3 minutes)
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.requestTimeout = d
	}
}

// WithSleeper overrides how backoff waits are performed (useful for tests)
func WithSleeper(sleeper func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) {
		p.sleeper = sleeper
	}
}

// WithArchive copies the raw audio into the given store after a successful
// upload, before the caller discards the local file
func WithArchive(store archive.Store) Option {
	return func(p *Pipeline) {
		p.archiveStore = store
	}
}

// New creates an upload pipeline targeting the given endpoint
func New(endpoint string, tokens auth.TokenSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		endpoint:       endpoint,
		tokens:         tokens,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{}
	}
	if p.sleeper == nil {
		p.sleeper = func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		}
	}
	return p
}

type uploadRequestBody struct {
	AudioBase64 string `json:"audioBase64"`
	FileName    string `json:"fileName"`
	TemplateID  string `json:"templateId"`
}

type uploadResponseBody struct {
	Success     bool   `json:"success"`
	FileNote    string `json:"fileNote"`
	FileNoteRaw string `json:"fileNoteRaw"`
	Text        string `json:"text"`
	Error       string `json:"error"`
	Message     string `json:"message"`
}

// Upload runs the full pipeline for one recording and returns the generated
// note text. A prior in-flight Upload on this instance is cancelled first; a
// cancelled call returns ErrCancelled without emitting a terminal phase.
func (p *Pipeline) Upload(ctx context.Context, req *Request, onPhase PhaseFunc) (string, error) {
	if onPhase == nil {
		onPhase = func(types.Phase) {}
	}

	ctx, cancel := context.WithCancel(ctx)
	p.replaceCancel(cancel)
	defer cancel()

	text, err := p.run(ctx, req, onPhase)
	if err != nil {
		if ctx.Err() == context.Canceled {
			// Superseded or aborted: no terminal phase, no error surfaced.
			return "", ErrCancelled
		}
		onPhase(types.PhaseError)
		return "", err
	}

	onPhase(types.PhaseComplete)
	return text, nil
}

// Cancel aborts the in-flight upload, if any. Idempotent.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// replaceCancel installs the abort handle for a new attempt, cancelling any
// prior in-flight attempt rather than queueing behind it.
func (p *Pipeline) replaceCancel(cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
}

func (p *Pipeline) run(ctx context.Context, req *Request, onPhase PhaseFunc) (string, error) {
	logger := logging.From(ctx)

	onPhase(types.PhaseConverting)

	// A missing or unreadable local recording is terminal; retry cannot fix
	// a corrupt file.
	audio, err := os.ReadFile(req.FileURI)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read recording", goerr.V("fileURI", req.FileURI))
	}
	encoded := base64.StdEncoding.EncodeToString(audio)
	fileName := filepath.Base(req.FileURI)

	onPhase(types.PhaseTranscribing)

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.initialBackoff * (1 << (attempt - 1))
			logger.Info("retrying upload",
				"attempt", attempt,
				"delay", delay.String(),
				"error", lastErr.Error(),
			)
			if err := p.sleeper(ctx, delay); err != nil {
				return "", err
			}
		}

		text, err := p.attempt(ctx, req, encoded, fileName)
		if err == nil {
			onPhase(types.PhaseGenerating)
			p.archiveAudio(ctx, fileName, audio)
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !retryable(err) {
			return "", err
		}
		lastErr = err
	}

	return "", goerr.Wrap(lastErr, "upload failed after retries",
		goerr.V("attempts", p.maxRetries+1))
}

// attempt issues one POST. Tokens are fetched fresh per attempt: a token may
// expire across a long retry sequence.
func (p *Pipeline) attempt(ctx context.Context, req *Request, encoded, fileName string) (string, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to obtain auth token")
	}

	body, err := json.Marshal(&uploadRequestBody{
		AudioBase64: encoded,
		FileName:    fileName,
		TemplateID:  req.TemplateID.String(),
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode upload request")
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to build upload request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", goerr.Wrap(err, "upload request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read upload response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{
			Code:    resp.StatusCode,
			Message: errorMessage(respBody),
		}
	}

	var parsed uploadResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", goerr.Wrap(err, "failed to decode upload response")
	}
	if !parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = parsed.Message
		}
		if msg == "" {
			msg = "server reported failure"
		}
		// Domain-level failure on HTTP 200; terminal, not a transport issue.
		return "", &StatusError{Code: http.StatusUnprocessableEntity, Message: msg}
	}

	// Structured note first, raw fallback second, plain text last.
	switch {
	case parsed.FileNote != "":
		return parsed.FileNote, nil
	case parsed.FileNoteRaw != "":
		return parsed.FileNoteRaw, nil
	default:
		return parsed.Text, nil
	}
}

// errorMessage extracts a human-readable message from a failure body,
// preferring structured JSON over raw text.
func errorMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return string(body)
}

// archiveAudio stores a copy of the raw audio in the background. The upload
// result is already settled; a cancelled pipeline context must not abort the
// archive write, so the put runs detached via Dispatch.
func (p *Pipeline) archiveAudio(ctx context.Context, fileName string, audio []byte) {
	if p.archiveStore == nil {
		return
	}
	async.Dispatch(ctx, func(ctx context.Context) error {
		if err := p.archiveStore.Put(ctx, fileName, bytes.NewReader(audio)); err != nil {
			// Archival is best-effort; the note is already generated.
			logging.From(ctx).Warn("failed to archive recording", "fileName", fileName, "error", err.Error())
		}
		return nil
	})
}
