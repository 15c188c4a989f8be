package domain

import (
	"fmt"
	"strings"

	"github.com/orsinium-labs/enum"
)

// Voice enum

type Voice enum.Member[string]

var (
	VoiceNova    = Voice{"nova"}
	VoiceShimmer = Voice{"shimmer"}
	Voices       = enum.New(VoiceNova, VoiceShimmer)
)

// ParseVoice returns the voice for a wire value; empty means the default voice.
func ParseVoice(s string, fallback Voice) (Voice, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	v := Voices.Parse(s)
	if v == nil {
		return Voice{}, fmt.Errorf("%w: %q", ErrUnknownVoice, s)
	}
	return *v, nil
}

func (v Voice) String() string { return v.Value }

func (v Voice) MarshalText() ([]byte, error) { return []byte(v.Value), nil }

func (v *Voice) UnmarshalText(b []byte) error {
	parsed, err := ParseVoice(string(b), VoiceNova)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
