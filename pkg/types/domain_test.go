package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	d, err := ModelDescriptor{ID: " m ", Category: "whisper"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "m", d.ID)
	assert.Equal(t, CategoryTranscription, d.Category)

	_, err = ModelDescriptor{ID: "m", Category: "llm", ContextSize: MaxContextSize}.Normalize()
	assert.NoError(t, err)

	bad := []ModelDescriptor{
		{ID: "", Category: "llm"},
		{ID: "m", Category: "vision"},
		{ID: "m", Category: "llm", ContextSize: -1},
		{ID: "m", Category: "llm", BatchSize: -1},
		{ID: "m", Category: "llm", ContextSize: MaxContextSize + 1},
		{ID: "m", Category: "llm", ContextSize: 1 << 47},
	}
	for _, b := range bad {
		_, err := b.Normalize()
		assert.Error(t, err, "%+v", b)
	}
}
