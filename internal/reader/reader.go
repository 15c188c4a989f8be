// Package reader pages through the stored story.
package reader

import (
	"context"
	"fmt"

	"storybook/internal/domain"
)

// Pages is the part of the story store the reader needs.
type Pages interface {
	Story() domain.Story
	Page() int
	SetPage(ctx context.Context, page int) error
	NextPage(ctx context.Context) error
	PrevPage(ctx context.Context) error
}

// Section is one page ready for display.
type Section struct {
	Index      int      `json:"index"`
	Total      int      `json:"total"`
	Title      string   `json:"title"`
	Paragraphs []string `json:"paragraphs"`
	IsFirst    bool     `json:"isFirst"`
	IsLast     bool     `json:"isLast"`
}

type Reader struct {
	pages Pages
}

func New(pages Pages) *Reader {
	return &Reader{pages: pages}
}

// Current renders the page the store points at.
func (r *Reader) Current() (Section, error) {
	story := r.pages.Story()
	if len(story) == 0 {
		return Section{}, domain.ErrNoStory
	}
	page := r.pages.Page()
	if page < 0 || page >= len(story) {
		return Section{}, fmt.Errorf("%w: %d", domain.ErrPageOutOfRange, page)
	}
	s := story[page]
	return Section{
		Index:      page,
		Total:      len(story),
		Title:      s.DisplayTitle(),
		Paragraphs: s.Paragraphs(),
		IsFirst:    page == 0,
		IsLast:     page == len(story)-1,
	}, nil
}

func (r *Reader) Page() int  { return r.pages.Page() }
func (r *Reader) Total() int { return len(r.pages.Story()) }

func (r *Reader) IsFirst() bool {
	return r.Total() > 0 && r.Page() == 0
}

func (r *Reader) IsLast() bool {
	total := r.Total()
	return total > 0 && r.Page() == total-1
}

// Next stays on the last page.
func (r *Reader) Next(ctx context.Context) (Section, error) {
	if r.Total() == 0 {
		return Section{}, domain.ErrNoStory
	}
	if err := r.pages.NextPage(ctx); err != nil {
		return Section{}, err
	}
	return r.Current()
}

// Prev stays on the first page.
func (r *Reader) Prev(ctx context.Context) (Section, error) {
	if r.Total() == 0 {
		return Section{}, domain.ErrNoStory
	}
	if err := r.pages.PrevPage(ctx); err != nil {
		return Section{}, err
	}
	return r.Current()
}

func (r *Reader) JumpTo(ctx context.Context, page int) (Section, error) {
	if err := r.pages.SetPage(ctx, page); err != nil {
		return Section{}, err
	}
	return r.Current()
}
