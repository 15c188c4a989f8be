package domain

import (
	"errors"
	"fmt"
)

// Application-wide errors
var (
	// Provider errors
	ErrMissingCredential = errors.New("provider credential is not configured")
	ErrInvalidCredential = errors.New("provider rejected the credential")
	ErrRateLimited       = errors.New("provider rate limit reached")
	ErrProvider          = errors.New("provider error")
	ErrMalformedResponse = errors.New("malformed AI response")
	ErrSpeechUnsupported = errors.New("speech synthesis is not supported by this provider")

	// Credential
	ErrInvalidCredentialFormat = errors.New("credential does not match the expected format")

	// Characters
	ErrIncompleteDraft     = errors.New("character draft is incomplete")
	ErrIncompleteCharacter = errors.New("incomplete character data")
	ErrCharacterNotFound   = errors.New("character not found")
	ErrInvalidGender       = errors.New("invalid gender")
	ErrInvalidEmotion      = errors.New("invalid emotion")
	ErrInvalidName         = errors.New("name must not be empty")
	ErrInvalidAge          = errors.New("age is out of range")

	// Theme
	ErrIncompleteTheme     = errors.New("theme selection is incomplete")
	ErrUnknownMission      = errors.New("unknown mission")
	ErrUnknownLocation     = errors.New("unknown location")
	ErrDetailsRequired     = errors.New("details are required unless the surprise option is chosen")
	ErrRandomRequired      = errors.New("the surprise option must be confirmed for this location")
	ErrInvalidMorale       = errors.New("custom morale must not be empty")
	ErrNoCharacterSelected = errors.New("no character is selected")

	// Storage
	ErrNotPersisted = errors.New("change kept in memory but not persisted")

	// Generation and reading
	ErrNotHydrated          = errors.New("stored data is still loading")
	ErrGenerationInProgress = errors.New("story generation is already in progress")
	ErrAttemptSuperseded    = errors.New("generation attempt was superseded by a newer one")
	ErrNoStory              = errors.New("no story available")
	ErrPageOutOfRange       = errors.New("page index is out of range")

	// Flows
	ErrStepLocked = errors.New("step is not reachable yet")

	// Speech
	ErrUnknownVoice = errors.New("unknown voice")
	ErrEmptyText    = errors.New("text must not be empty")
)

// ProviderError is a non-success provider reply that is neither 401 nor 429.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", ErrProvider, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", ErrProvider, e.StatusCode)
}

func (e *ProviderError) Unwrap() error { return ErrProvider }

// ClassifyStatus turns a provider HTTP status and message into one of the
// provider error kinds. A zero status means the transport failed before any
// reply; the message is kept as a generic provider error.
func ClassifyStatus(status int, message string) error {
	switch status {
	case 401:
		return ErrInvalidCredential
	case 429:
		if message != "" {
			return fmt.Errorf("%w: %s", ErrRateLimited, message)
		}
		return ErrRateLimited
	default:
		return &ProviderError{StatusCode: status, Message: message}
	}
}

// UserMessage returns the message shown to the user next to the retry action.
func UserMessage(err error) string {
	var perr *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredential):
		return "Clé API manquante : ajoute ta clé pour créer une histoire."
	case errors.Is(err, ErrInvalidCredential), errors.Is(err, ErrInvalidCredentialFormat):
		return "Clé API invalide. Vérifie ta clé et réessaie."
	case errors.Is(err, ErrRateLimited):
		return "Trop de demandes pour le moment. Patiente un peu puis réessaie."
	case errors.Is(err, ErrMalformedResponse):
		return "Le format de l'histoire n'est pas valide. Veuillez réessayer."
	case errors.Is(err, ErrIncompleteCharacter):
		return "Les informations du personnage sont incomplètes."
	case errors.Is(err, ErrNotHydrated):
		return "Chargement des données du personnage en cours, veuillez patienter..."
	case errors.Is(err, ErrGenerationInProgress):
		return "Une histoire est déjà en cours de création."
	case errors.As(err, &perr):
		if perr.Message != "" {
			return "Erreur du fournisseur : " + perr.Message
		}
		return fmt.Sprintf("Erreur du fournisseur (HTTP %d).", perr.StatusCode)
	default:
		return err.Error()
	}
}
