package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"modelcore/pkg/types"
)

// Input kinds accepted by DecodeInput.
const (
	KindCompletion    = "completion"
	KindChat          = "chat"
	KindEmbedding     = "embedding"
	KindTranscription = "transcription"
)

// CompletionInput is a raw-prompt generation request.
type CompletionInput struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float32  `json:"temperature,omitempty"`
	TopP        float32  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        int      `json:"seed,omitempty"`
}

// ChatMessage is one turn of a chat transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatInput is a chat-completion request.
type ChatInput struct {
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

// EmbeddingInput carries text, or an image for image-embedding models.
type EmbeddingInput struct {
	Text  string `json:"text,omitempty"`
	Image []byte `json:"image,omitempty"`
}

// TranscriptionInput carries encoded audio (base64 in JSON).
type TranscriptionInput struct {
	Audio    []byte `json:"audio"`
	Filename string `json:"filename,omitempty"`
	Language string `json:"language,omitempty"`
}

// CompletionOutput is returned for completion and chat inputs.
type CompletionOutput struct {
	Text             string `json:"text"`
	FinishReason     string `json:"finish_reason,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

// EmbeddingOutput is one embedding vector.
type EmbeddingOutput struct {
	Vector []float32 `json:"vector"`
}

// TranscriptionOutput is the recognized text.
type TranscriptionOutput struct {
	Text string `json:"text"`
}

// ErrUnsupportedInput is wrapped when a backend receives an input type it
// cannot serve.
var ErrUnsupportedInput = errors.New("unsupported input")

func unsupported(backend string, in any) error {
	return fmt.Errorf("%s: %w %T", backend, ErrUnsupportedInput, in)
}

// DecodeInput turns a JSON document into the typed input for kind. An empty
// kind defaults to completion.
func DecodeInput(kind string, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, errors.New("input is required")
	}
	var (
		in  any
		err error
	)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindCompletion:
		var v CompletionInput
		err = json.Unmarshal(raw, &v)
		if err == nil && v.Prompt == "" {
			err = errors.New("prompt is required")
		}
		in = v
	case KindChat:
		var v ChatInput
		err = json.Unmarshal(raw, &v)
		if err == nil && len(v.Messages) == 0 {
			err = errors.New("messages are required")
		}
		in = v
	case KindEmbedding:
		var v EmbeddingInput
		err = json.Unmarshal(raw, &v)
		if err == nil && v.Text == "" && len(v.Image) == 0 {
			err = errors.New("text or image is required")
		}
		in = v
	case KindTranscription:
		var v TranscriptionInput
		err = json.Unmarshal(raw, &v)
		if err == nil && len(v.Audio) == 0 {
			err = errors.New("audio is required")
		}
		in = v
	default:
		return nil, fmt.Errorf("unknown input kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s input: %w", kind, err)
	}
	return in, nil
}

// KindFor is the input kind assumed for a category when a request names none.
func KindFor(c types.Category) string {
	switch c {
	case types.CategoryTranscription:
		return KindTranscription
	case types.CategoryTextEmbedding, types.CategoryImageEmbedding:
		return KindEmbedding
	}
	return KindCompletion
}

// chatPrompt flattens a transcript for engines without a chat template.
func chatPrompt(msgs []ChatMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("assistant: ")
	return b.String()
}
