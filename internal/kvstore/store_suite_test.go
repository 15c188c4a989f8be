package kvstore

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// StoreSuite is the behaviour every backend must share.
type StoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
	ctx      context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore(s.T())
	keys, err := s.store.Keys(s.ctx, "")
	require.NoError(s.T(), err)
	for _, k := range keys {
		require.NoError(s.T(), s.store.Delete(s.ctx, k))
	}
}

func (s *StoreSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *StoreSuite) TestGetMissingKey() {
	_, err := s.store.Get(s.ctx, "character-storage")
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreSuite) TestSetReplacesWholeValue() {
	s.Require().NoError(s.store.Set(s.ctx, "wizard-storage", []byte(`{"mission":"Aider un ami","location":"Espace"}`)))
	s.Require().NoError(s.store.Set(s.ctx, "wizard-storage", []byte(`{"mission":"Trouver un trésor"}`)))

	got, err := s.store.Get(s.ctx, "wizard-storage")
	s.Require().NoError(err)
	s.JSONEq(`{"mission":"Trouver un trésor"}`, string(got))
}

func (s *StoreSuite) TestDeleteIsIdempotent() {
	s.Require().NoError(s.store.Set(s.ctx, "openai-api-key", []byte("sk-test")))
	s.Require().NoError(s.store.Delete(s.ctx, "openai-api-key"))
	s.Require().NoError(s.store.Delete(s.ctx, "openai-api-key"))

	_, err := s.store.Get(s.ctx, "openai-api-key")
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreSuite) TestKeysByPrefix() {
	for _, k := range []string{"audio-cache:a", "audio-cache:b", "audio-cache-index", "story-storage"} {
		s.Require().NoError(s.store.Set(s.ctx, k, []byte("x")))
	}

	keys, err := s.store.Keys(s.ctx, "audio-cache:")
	s.Require().NoError(err)
	sort.Strings(keys)
	s.Equal([]string{"audio-cache:a", "audio-cache:b"}, keys)
}

func (s *StoreSuite) TestBinaryValuesRoundTrip() {
	clip := []byte{0xff, 0xfb, 0x00, 0x90, 0x44, 0x00}
	s.Require().NoError(s.store.Set(s.ctx, "audio-cache:clip", clip))

	got, err := s.store.Get(s.ctx, "audio-cache:clip")
	s.Require().NoError(err)
	s.Equal(clip, got)
}

func (s *StoreSuite) TestJSONHelpers() {
	type state struct {
		Page int `json:"page"`
	}
	s.Require().NoError(SetJSON(s.ctx, s.store, "story-storage", state{Page: 3}))

	var got state
	s.Require().NoError(GetJSON(s.ctx, s.store, "story-storage", &got))
	s.Equal(3, got.Page)

	s.Require().NoError(s.store.Set(s.ctx, "story-storage", []byte("{broken")))
	s.Error(GetJSON(s.ctx, s.store, "story-storage", &got))
}
