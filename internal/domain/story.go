package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// StorySectionCount is the number of parts the provider is asked to write.
const StorySectionCount = 5

// StorySection is one page of a story.
type StorySection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Story is an ordered list of exactly StorySectionCount sections.
type Story []StorySection

// Validate checks the generation contract.
func (s Story) Validate() error {
	if len(s) != StorySectionCount {
		return fmt.Errorf("%w: expected %d sections, got %d", ErrMalformedResponse, StorySectionCount, len(s))
	}
	for i, section := range s {
		if strings.TrimSpace(section.Title) == "" {
			return fmt.Errorf("%w: section %d has no title", ErrMalformedResponse, i+1)
		}
		if strings.TrimSpace(section.Content) == "" {
			return fmt.Errorf("%w: section %d has no content", ErrMalformedResponse, i+1)
		}
	}
	return nil
}

// ParseStory decodes the provider reply. The reply must be a bare JSON
// array; anything else is a malformed response and nothing is repaired.
func ParseStory(text string) (Story, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	var story Story
	if err := dec.Decode(&story); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON array", ErrMalformedResponse)
	}
	if err := story.Validate(); err != nil {
		return nil, err
	}
	return story, nil
}

var partPrefix = regexp.MustCompile(`^\s*Partie\s+\d+\s*:\s*`)

// DisplayTitle drops the "Partie N :" prefix the model tends to add.
func (s StorySection) DisplayTitle() string {
	return strings.TrimSpace(partPrefix.ReplaceAllString(s.Title, ""))
}

// Paragraphs splits the content on line breaks, skipping blank lines.
func (s StorySection) Paragraphs() []string {
	var out []string
	for _, p := range strings.Split(s.Content, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
