package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/orsinium-labs/enum"
)

// Age bounds offered by the age picker.
const (
	MinAge = 3
	MaxAge = 10
)

// Gender enum

type Gender enum.Member[string]

var (
	GenderBoy  = Gender{"boy"}
	GenderGirl = Gender{"girl"}
	Genders    = enum.New(GenderBoy, GenderGirl)
)

// ParseGender returns the gender for a wire value.
func ParseGender(s string) (Gender, error) {
	g := Genders.Parse(strings.TrimSpace(s))
	if g == nil {
		return Gender{}, fmt.Errorf("%w: %q", ErrInvalidGender, s)
	}
	return *g, nil
}

func (g Gender) String() string { return g.Value }

// Label is the French word used in prompts.
func (g Gender) Label() string {
	if g == GenderBoy {
		return "garçon"
	}
	return "fille"
}

func (g Gender) MarshalText() ([]byte, error) { return []byte(g.Value), nil }

func (g *Gender) UnmarshalText(b []byte) error {
	v, err := ParseGender(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// Emotion enum

type Emotion enum.Member[string]

var (
	EmotionBrave   = Emotion{"brave"}
	EmotionShy     = Emotion{"shy"}
	EmotionScared  = Emotion{"scared"}
	EmotionCurious = Emotion{"curious"}
	EmotionHappy   = Emotion{"happy"}
	EmotionSad     = Emotion{"sad"}
	Emotions       = enum.New(EmotionBrave, EmotionShy, EmotionScared, EmotionCurious, EmotionHappy, EmotionSad)
)

var emotionLabels = map[Emotion]string{
	EmotionBrave:   "Courageux",
	EmotionShy:     "Timide",
	EmotionScared:  "Effrayé",
	EmotionCurious: "Curieux",
	EmotionHappy:   "Joyeux",
	EmotionSad:     "Triste",
}

// ParseEmotion returns the emotion for a wire value.
func ParseEmotion(s string) (Emotion, error) {
	e := Emotions.Parse(strings.TrimSpace(s))
	if e == nil {
		return Emotion{}, fmt.Errorf("%w: %q", ErrInvalidEmotion, s)
	}
	return *e, nil
}

func (e Emotion) String() string { return e.Value }

func (e Emotion) Label() string { return emotionLabels[e] }

func (e Emotion) MarshalText() ([]byte, error) { return []byte(e.Value), nil }

func (e *Emotion) UnmarshalText(b []byte) error {
	v, err := ParseEmotion(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Character is a saved hero. It never changes after SaveDraft; only removal is allowed.
type Character struct {
	ID      uuid.UUID `json:"id"`
	Gender  Gender    `json:"gender"`
	Name    string    `json:"name"`
	Age     int       `json:"age"`
	Emotion Emotion   `json:"emotion"`
}

// Validate checks every field, as the generator requires before building a prompt.
func (c Character) Validate() error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrIncompleteCharacter)
	}
	if !Genders.Contains(c.Gender) {
		return fmt.Errorf("%w: gender %q", ErrIncompleteCharacter, c.Gender.Value)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrIncompleteCharacter)
	}
	if c.Age < MinAge || c.Age > MaxAge {
		return fmt.Errorf("%w: age %d", ErrIncompleteCharacter, c.Age)
	}
	if !Emotions.Contains(c.Emotion) {
		return fmt.Errorf("%w: emotion %q", ErrIncompleteCharacter, c.Emotion.Value)
	}
	return nil
}

// ValidateForStory checks only what the story prompt needs: a known gender,
// a name and a positive age. The trait is optional.
func (c Character) ValidateForStory() error {
	if !Genders.Contains(c.Gender) {
		return fmt.Errorf("%w: gender %q", ErrIncompleteCharacter, c.Gender.Value)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrIncompleteCharacter)
	}
	if c.Age <= 0 {
		return fmt.Errorf("%w: age %d", ErrIncompleteCharacter, c.Age)
	}
	return nil
}

// HasTrait reports whether the emotion is a known one.
func (c Character) HasTrait() bool { return Emotions.Contains(c.Emotion) }

// CharacterDraft is a Character under construction. Nil means "not chosen yet".
type CharacterDraft struct {
	Gender  *Gender  `json:"gender,omitempty"`
	Name    *string  `json:"name,omitempty"`
	Age     *int     `json:"age,omitempty"`
	Emotion *Emotion `json:"emotion,omitempty"`
}

// Missing lists the fields still unset, in wizard order.
func (d CharacterDraft) Missing() []string {
	var missing []string
	if d.Gender == nil {
		missing = append(missing, "gender")
	}
	if d.Name == nil {
		missing = append(missing, "name")
	}
	if d.Age == nil {
		missing = append(missing, "age")
	}
	if d.Emotion == nil {
		missing = append(missing, "emotion")
	}
	return missing
}

// Complete reports whether all four fields are set.
func (d CharacterDraft) Complete() bool { return len(d.Missing()) == 0 }

// Build turns a complete draft into a Character with the given id.
func (d CharacterDraft) Build(id uuid.UUID) (Character, error) {
	if missing := d.Missing(); len(missing) > 0 {
		return Character{}, fmt.Errorf("%w: missing %s", ErrIncompleteDraft, strings.Join(missing, ", "))
	}
	return Character{
		ID:      id,
		Gender:  *d.Gender,
		Name:    *d.Name,
		Age:     *d.Age,
		Emotion: *d.Emotion,
	}, nil
}

// NormalizeName trims the name and upper-cases its first letter.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:], nil
}

// ValidateAge checks the picker bounds.
func ValidateAge(age int) error {
	if age < MinAge || age > MaxAge {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidAge, age, MinAge, MaxAge)
	}
	return nil
}
