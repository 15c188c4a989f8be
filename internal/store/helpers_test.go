package store

import (
	"context"
	"errors"

	"storybook/internal/domain"
	"storybook/internal/kvstore"
)

var errDiskFull = errors.New("disk full")

// failingKV accepts reads but rejects every write.
type failingKV struct {
	*kvstore.MemoryStore
}

func (f failingKV) Set(context.Context, string, []byte) error { return errDiskFull }

func ptr[T any](v T) *T { return &v }

func fiveSectionStory() domain.Story {
	story := make(domain.Story, domain.StorySectionCount)
	for i := range story {
		story[i] = domain.StorySection{Title: "Partie", Content: "Il était une fois."}
	}
	return story
}
