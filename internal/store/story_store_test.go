package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storybook/internal/domain"
	"storybook/internal/kvstore"
)

func newHydratedStoryStore(t *testing.T, kv kvstore.Store) *StoryStore {
	t.Helper()
	s := NewStoryStore(kv, zap.NewNop())
	require.NoError(t, s.Hydrate(context.Background()))
	return s
}

func TestStoryStore_SetStoryResetsPage(t *testing.T) {
	ctx := context.Background()
	s := newHydratedStoryStore(t, kvstore.NewMemoryStore())
	require.NoError(t, s.SetStory(ctx, fiveSectionStory()))
	require.NoError(t, s.SetPage(ctx, 3))
	assert.Equal(t, 3, s.Page())

	require.NoError(t, s.SetStory(ctx, fiveSectionStory()))
	assert.Equal(t, 0, s.Page())

	assert.ErrorIs(t, s.SetStory(ctx, nil), domain.ErrNoStory)
}

func TestStoryStore_NavigationStaysInBounds(t *testing.T) {
	ctx := context.Background()
	s := newHydratedStoryStore(t, kvstore.NewMemoryStore())
	require.NoError(t, s.SetStory(ctx, fiveSectionStory()))

	require.NoError(t, s.PrevPage(ctx))
	assert.Equal(t, 0, s.Page(), "prev on first page is a no-op")

	for i := 0; i < 10; i++ {
		require.NoError(t, s.NextPage(ctx))
		assert.LessOrEqual(t, s.Page(), 4)
	}
	assert.Equal(t, 4, s.Page(), "next on last page is a no-op")

	require.NoError(t, s.PrevPage(ctx))
	assert.Equal(t, 3, s.Page())
}

func TestStoryStore_SetPageValidatesRange(t *testing.T) {
	ctx := context.Background()
	s := newHydratedStoryStore(t, kvstore.NewMemoryStore())
	assert.ErrorIs(t, s.SetPage(ctx, 0), domain.ErrNoStory)

	require.NoError(t, s.SetStory(ctx, fiveSectionStory()))
	require.NoError(t, s.SetPage(ctx, 2))
	assert.ErrorIs(t, s.SetPage(ctx, 5), domain.ErrPageOutOfRange)
	assert.ErrorIs(t, s.SetPage(ctx, -1), domain.ErrPageOutOfRange)
	assert.Equal(t, 2, s.Page())
}

func TestStoryStore_NavigationWithoutStory(t *testing.T) {
	ctx := context.Background()
	s := newHydratedStoryStore(t, kvstore.NewMemoryStore())
	require.NoError(t, s.NextPage(ctx))
	require.NoError(t, s.PrevPage(ctx))
	assert.Equal(t, 0, s.Page())
}

func TestStoryStore_ResetAndPersistence(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	s := newHydratedStoryStore(t, kv)
	require.NoError(t, s.SetStory(ctx, fiveSectionStory()))
	require.NoError(t, s.SetPage(ctx, 2))

	reloaded := newHydratedStoryStore(t, kv)
	assert.Equal(t, s.Story(), reloaded.Story())
	assert.Equal(t, 2, reloaded.Page())

	require.NoError(t, s.Reset(ctx))
	assert.Empty(t, s.Story())
	assert.Equal(t, 0, s.Page())
	assert.Empty(t, newHydratedStoryStore(t, kv).Story())
}

func TestStoryStore_HydrateClampsPage(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	require.NoError(t, kvstore.SetJSON(ctx, kv, StoryKey, StoryState{Story: fiveSectionStory(), CurrentPage: 9}))

	s := newHydratedStoryStore(t, kv)
	assert.Equal(t, 4, s.Page())
}

func TestStoryStore_SubscribeSeesPageChanges(t *testing.T) {
	ctx := context.Background()
	s := newHydratedStoryStore(t, kvstore.NewMemoryStore())
	var pages []int
	s.Subscribe(func(st StoryState) { pages = append(pages, st.CurrentPage) })

	require.NoError(t, s.SetStory(ctx, fiveSectionStory()))
	require.NoError(t, s.NextPage(ctx))
	require.NoError(t, s.PrevPage(ctx))
	require.NoError(t, s.PrevPage(ctx))

	assert.Equal(t, []int{0, 1, 0}, pages)
}
