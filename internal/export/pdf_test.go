package export

import (
	"bytes"
	"testing"

	"storybook/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePDF(t *testing.T) {
	story := make(domain.Story, domain.StorySectionCount)
	for i := range story {
		story[i] = domain.StorySection{
			Title:   "Partie 1 : Le début",
			Content: "Léa marche dans la forêt.\nÀ côté d'elle, un hérisson éternue.",
		}
	}
	hero := domain.Character{
		ID:      uuid.New(),
		Gender:  domain.GenderGirl,
		Name:    "Léa",
		Age:     6,
		Emotion: domain.EmotionCurious,
	}

	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, story, hero))

	out := buf.Bytes()
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Contains(t, string(bytes.TrimSpace(out[len(out)-16:])), "%%EOF")
}

func TestWritePDFWithoutStory(t *testing.T) {
	var buf bytes.Buffer
	err := WritePDF(&buf, nil, domain.Character{Name: "Léa"})
	assert.ErrorIs(t, err, domain.ErrNoStory)
	assert.Zero(t, buf.Len())
}
