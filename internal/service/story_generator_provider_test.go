package service

import (
	"context"
	"net/http"
	"testing"

	"storybook/internal/domain"
	"storybook/internal/kvstore"
	"storybook/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStoryGeneratorRejectedCredentialKeepsStory(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	logger := zap.NewNop()

	chars := store.NewCharacterStore(kv, logger)
	theme := store.NewThemeStore(kv, logger)
	stories := store.NewStoryStore(kv, logger)
	require.NoError(t, chars.Hydrate(ctx))
	require.NoError(t, theme.Hydrate(ctx))
	require.NoError(t, stories.Hydrate(ctx))

	require.NoError(t, chars.SetGender(ctx, domain.GenderGirl))
	require.NoError(t, chars.SetName(ctx, "Alice"))
	require.NoError(t, chars.SetAge(ctx, 5))
	require.NoError(t, chars.SetEmotion(ctx, domain.EmotionBrave))
	_, err := chars.SaveDraft(ctx)
	require.NoError(t, err)
	require.NoError(t, theme.SetMission(ctx, "Trouver un trésor", nil, true))
	require.NoError(t, theme.SetLocation(ctx, "Forêt magique", nil, true))

	previous := make(domain.Story, domain.StorySectionCount)
	for i := range previous {
		previous[i] = domain.StorySection{Title: "Partie", Content: "Hier soir."}
	}
	require.NoError(t, stories.SetStory(ctx, previous))
	require.NoError(t, stories.SetPage(ctx, 3))
	themeBefore := theme.Selection()

	f := newFakeOpenAI(t)
	f.setReply(jsonReply(http.StatusUnauthorized,
		`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	client := newTestOpenAI(f, staticCreds("sk-revoked"), nil)

	gen := NewStoryGenerator(client, chars, theme, stories, GenerationParams{}, logger)
	_, err = gen.Generate(ctx)

	require.ErrorIs(t, err, domain.ErrInvalidCredential)
	assert.Equal(t, 1, f.count())
	assert.Equal(t, "/v1/chat/completions", f.path())
	assert.Equal(t, previous, stories.Story())
	assert.Equal(t, 3, stories.Page())
	assert.Equal(t, themeBefore, theme.Selection())
	assert.False(t, gen.InProgress())

	var persisted store.StoryState
	require.NoError(t, kvstore.GetJSON(ctx, kv, store.StoryKey, &persisted))
	assert.Equal(t, 3, persisted.CurrentPage)
	assert.Equal(t, previous, persisted.Story)
}
