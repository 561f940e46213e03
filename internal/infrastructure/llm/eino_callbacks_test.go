package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
)

func TestChatModelCallbacks_RecordStartTime(t *testing.T) {
	h := newChatModelCallbackHandler()

	ctx := h.OnStart(context.Background(), nil, &model.CallbackInput{Config: &model.Config{Model: "gpt-4o-mini"}})
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	assert.True(t, ok)
	assert.False(t, start.IsZero())

	assert.NotPanics(t, func() {
		h.OnEnd(ctx, nil, &model.CallbackOutput{
			Config:     &model.Config{Model: "gpt-4o-mini"},
			TokenUsage: &model.TokenUsage{PromptTokens: 10, CompletionTokens: 5},
		})
		h.OnError(ctx, nil, errors.New("boom"))
	})
}

func TestChatModelCallbacks_DrainsStreamCopy(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := h.OnStart(context.Background(), nil, nil)

	sr, sw := schema.Pipe[*model.CallbackOutput](2)
	h.OnEndWithStreamOutput(ctx, nil, sr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sw.Send(&model.CallbackOutput{TokenUsage: &model.TokenUsage{PromptTokens: 3}}, nil)
		sw.Send(&model.CallbackOutput{Config: &model.Config{Model: "gpt-4o"}}, nil)
		sw.Close()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream copy was not drained")
	}
}

func TestModelNameHelpers(t *testing.T) {
	assert.Empty(t, modelNameFromInput(nil))
	assert.Empty(t, modelNameFromOutput(&model.CallbackOutput{}))
	assert.Nil(t, tokenUsageOf(nil))
	assert.Zero(t, elapsed(context.Background()))
}

func TestInstallEinoCallbacks_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		InstallEinoCallbacks()
		InstallEinoCallbacks()
	})
}
