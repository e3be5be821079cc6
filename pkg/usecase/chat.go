package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/service/chat"
)

// ChatUseCase keeps an ordered chat transcript and streams assistant
// responses into it. While a response is in flight the transcript ends with
// a transient placeholder message that grows chunk by chunk; the placeholder
// is finalized with a real ID when the stream terminates and removed if it
// fails, is cancelled, or is superseded by a newer Send.
type ChatUseCase struct {
	client *chat.Client

	mu       sync.Mutex
	messages []*model.ChatMessage
}

// Messages returns a copy of the transcript in order
func (uc *ChatUseCase) Messages() []*model.ChatMessage {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	out := make([]*model.ChatMessage, len(uc.messages))
	for i, m := range uc.messages {
		copied := *m
		out[i] = &copied
	}
	return out
}

// Send appends the user message and streams the assistant reply. onUpdate is
// invoked after every transcript change so a UI can re-render; it may be nil.
// A cancelled stream removes the placeholder and returns nil. A Send issued
// while another is in flight supersedes it: the older stream is aborted by
// the client and its partial placeholder is removed from the transcript.
func (uc *ChatUseCase) Send(ctx context.Context, content string, patientID types.PatientID, onUpdate func()) error {
	if content == "" {
		return goerr.New("message content is empty")
	}
	if onUpdate == nil {
		onUpdate = func() {}
	}

	placeholder := &model.ChatMessage{
		ID:   model.StreamingMessageID,
		Role: types.ChatRoleAssistant,
	}

	uc.mu.Lock()
	// A superseded stream fires no terminal callback; its partial
	// placeholder must not survive into the new transcript.
	uc.removeStreamingLocked()
	uc.messages = append(uc.messages,
		&model.ChatMessage{
			ID:        types.NewSessionID().String(),
			Role:      types.ChatRoleUser,
			Content:   content,
			Timestamp: time.Now(),
		},
		placeholder,
	)
	history := uc.historyLocked()
	uc.mu.Unlock()
	onUpdate()

	var streamErr error
	err := uc.client.Stream(ctx, history, patientID, chat.Handler{
		OnChunk: func(chunk string) {
			uc.appendToStreaming(placeholder, chunk)
			onUpdate()
		},
		OnDone: func(full string) {
			uc.finalizeStreaming(placeholder, full)
			onUpdate()
		},
		OnError: func(msg string) {
			uc.dropStreaming(placeholder)
			onUpdate()
			streamErr = goerr.New("chat stream failed", goerr.V("message", msg))
		},
	})
	if err != nil {
		uc.dropStreaming(placeholder)
		onUpdate()
		return err
	}
	if streamErr != nil {
		return streamErr
	}

	// A cancelled stream fires no terminal callback; drop the placeholder
	// so the transcript never ends with a dangling partial message.
	if ctx.Err() != nil {
		uc.dropStreaming(placeholder)
		onUpdate()
	}
	return nil
}

// Cancel aborts the in-flight assistant response, if any
func (uc *ChatUseCase) Cancel() {
	uc.client.Cancel()
	uc.mu.Lock()
	uc.removeStreamingLocked()
	uc.mu.Unlock()
}

// historyLocked returns the transcript to send, excluding the placeholder
func (uc *ChatUseCase) historyLocked() []model.ChatMessage {
	history := make([]model.ChatMessage, 0, len(uc.messages))
	for _, m := range uc.messages {
		if m.IsStreaming() {
			continue
		}
		history = append(history, *m)
	}
	return history
}

// appendToStreaming grows the given attempt's placeholder. Mutating an
// already-removed placeholder is harmless; it is no longer in the transcript.
func (uc *ChatUseCase) appendToStreaming(p *model.ChatMessage, chunk string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if p.IsStreaming() {
		p.Content += chunk
	}
}

func (uc *ChatUseCase) finalizeStreaming(p *model.ChatMessage, full string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if p.IsStreaming() {
		p.ID = types.NewSessionID().String()
		p.Content = full
		p.Timestamp = time.Now()
	}
}

// dropStreaming removes the given attempt's placeholder from the transcript.
// Only the still-streaming placeholder of that attempt is touched, so a stale
// drop cannot remove a finalized message or another attempt's placeholder.
func (uc *ChatUseCase) dropStreaming(p *model.ChatMessage) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if !p.IsStreaming() {
		return
	}
	for i, m := range uc.messages {
		if m == p {
			uc.messages = append(uc.messages[:i], uc.messages[i+1:]...)
			return
		}
	}
}

// removeStreamingLocked purges any streaming placeholder from the transcript
func (uc *ChatUseCase) removeStreamingLocked() {
	kept := uc.messages[:0]
	for _, m := range uc.messages {
		if m.IsStreaming() {
			continue
		}
		kept = append(kept, m)
	}
	uc.messages = kept
}
