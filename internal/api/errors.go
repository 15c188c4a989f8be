package api

import (
	"context"
	"errors"
	"net/http"

	"storybook/internal/domain"

	"github.com/gin-gonic/gin"
)

// errBadRequest marks request bodies and path params that could not be read.
var errBadRequest = errors.New("bad request")

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order; the first errors.Is match wins.
var errorMappings = []errorMapping{
	{domain.ErrNotHydrated, http.StatusServiceUnavailable, "not_hydrated"},
	{domain.ErrStepLocked, http.StatusConflict, "step_locked"},
	{domain.ErrGenerationInProgress, http.StatusConflict, "generation_in_progress"},
	{domain.ErrAttemptSuperseded, http.StatusConflict, "attempt_superseded"},
	{domain.ErrMissingCredential, http.StatusPreconditionFailed, "missing_credential"},
	{domain.ErrInvalidCredential, http.StatusUnauthorized, "invalid_credential"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{domain.ErrMalformedResponse, http.StatusBadGateway, "malformed_response"},
	{domain.ErrSpeechUnsupported, http.StatusNotImplemented, "speech_unsupported"},
	{domain.ErrProvider, http.StatusBadGateway, "provider_error"},
	{domain.ErrCharacterNotFound, http.StatusNotFound, "character_not_found"},
	{domain.ErrNoStory, http.StatusNotFound, "no_story"},

	// валидация
	{domain.ErrInvalidCredentialFormat, http.StatusBadRequest, "invalid_credential_format"},
	{domain.ErrIncompleteDraft, http.StatusBadRequest, "incomplete_draft"},
	{domain.ErrIncompleteCharacter, http.StatusBadRequest, "incomplete_character"},
	{domain.ErrInvalidGender, http.StatusBadRequest, "invalid_gender"},
	{domain.ErrInvalidEmotion, http.StatusBadRequest, "invalid_emotion"},
	{domain.ErrInvalidName, http.StatusBadRequest, "invalid_name"},
	{domain.ErrInvalidAge, http.StatusBadRequest, "invalid_age"},
	{domain.ErrIncompleteTheme, http.StatusBadRequest, "incomplete_theme"},
	{domain.ErrUnknownMission, http.StatusBadRequest, "unknown_mission"},
	{domain.ErrUnknownLocation, http.StatusBadRequest, "unknown_location"},
	{domain.ErrDetailsRequired, http.StatusBadRequest, "details_required"},
	{domain.ErrRandomRequired, http.StatusBadRequest, "random_required"},
	{domain.ErrInvalidMorale, http.StatusBadRequest, "invalid_morale"},
	{domain.ErrNoCharacterSelected, http.StatusBadRequest, "no_character_selected"},
	{domain.ErrPageOutOfRange, http.StatusBadRequest, "page_out_of_range"},
	{domain.ErrUnknownVoice, http.StatusBadRequest, "unknown_voice"},
	{domain.ErrEmptyText, http.StatusBadRequest, "empty_text"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},

	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// statusFor maps an error to its HTTP status and code.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// abortWithError writes the error body and stops the handler chain. Server
// side failures are attached to the context so the logger picks them up.
func abortWithError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := domain.UserMessage(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		if status == http.StatusInternalServerError {
			message = "Une erreur interne est survenue."
		}
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}
