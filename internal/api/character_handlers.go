package api

import (
	"fmt"
	"net/http"

	"storybook/internal/domain"
	"storybook/internal/flow"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// characterFields carries any subset of the draft fields.
type characterFields struct {
	Gender  *string `json:"gender"`
	Name    *string `json:"name"`
	Age     *int    `json:"age"`
	Emotion *string `json:"emotion"`
}

type gotoRequest struct {
	Step string `json:"step" binding:"required"`
}

type characterIDRequest struct {
	ID string `json:"id" binding:"required"`
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}

func parseCharacterID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid character id %q", errBadRequest, raw)
	}
	return id, nil
}

func (h *Handler) listCharacters(c *gin.Context) {
	c.JSON(http.StatusOK, h.Characters.State())
}

// updateDraft применяет переданные поля черновика по порядку мастера.
func (h *Handler) updateDraft(c *gin.Context) {
	var req characterFields
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	if req.Gender != nil {
		g, err := domain.ParseGender(*req.Gender)
		if err == nil {
			err = h.Characters.SetGender(ctx, g)
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
	}
	if req.Name != nil {
		name, err := domain.NormalizeName(*req.Name)
		if err == nil {
			err = h.Characters.SetName(ctx, name)
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
	}
	if req.Age != nil {
		if err := h.Characters.SetAge(ctx, *req.Age); err != nil {
			abortWithError(c, err)
			return
		}
	}
	if req.Emotion != nil {
		e, err := domain.ParseEmotion(*req.Emotion)
		if err == nil {
			err = h.Characters.SetEmotion(ctx, e)
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, h.Characters.State())
}

func (h *Handler) saveDraft(c *gin.Context) {
	saved, err := h.Characters.SaveDraft(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (h *Handler) resetDraft(c *gin.Context) {
	if err := h.Characters.ResetDraft(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) selectCharacter(c *gin.Context) {
	id, err := parseCharacterID(c.Param("id"))
	if err == nil {
		err = h.Characters.Select(c.Request.Context(), id)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Characters.State())
}

func (h *Handler) removeCharacter(c *gin.Context) {
	id, err := parseCharacterID(c.Param("id"))
	if err == nil {
		err = h.Characters.Remove(c.Request.Context(), id)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- мастер персонажа --- //

func respondCharacterFlow(c *gin.Context, st flow.CharacterFlowState, err error) {
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) characterFlowState(c *gin.Context) {
	c.JSON(http.StatusOK, h.CharacterFlow.State())
}

func (h *Handler) startCharacterFlow(c *gin.Context) {
	st, err := h.CharacterFlow.Start(c.Request.Context())
	respondCharacterFlow(c, st, err)
}

func (h *Handler) createAnotherCharacter(c *gin.Context) {
	st, err := h.CharacterFlow.CreateAnother(c.Request.Context())
	respondCharacterFlow(c, st, err)
}

// submitCharacterStep отправляет значение для текущего шага мастера.
func (h *Handler) submitCharacterStep(c *gin.Context) {
	var req characterFields
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	cf := h.CharacterFlow

	missing := func(field string) error {
		return fmt.Errorf("%w: %s is required at this step", errBadRequest, field)
	}

	var (
		st  flow.CharacterFlowState
		err error
	)
	switch step := cf.Step(); step {
	case flow.StepChoosingGender:
		if req.Gender == nil {
			err = missing("gender")
			break
		}
		var g domain.Gender
		if g, err = domain.ParseGender(*req.Gender); err == nil {
			st, err = cf.ChooseGender(ctx, g)
		}
	case flow.StepEnteringName:
		if req.Name == nil {
			err = missing("name")
			break
		}
		st, err = cf.EnterName(ctx, *req.Name)
	case flow.StepChoosingAge:
		if req.Age == nil {
			err = missing("age")
			break
		}
		st, err = cf.ChooseAge(ctx, *req.Age)
	case flow.StepChoosingEmotion:
		if req.Emotion == nil {
			err = missing("emotion")
			break
		}
		var e domain.Emotion
		if e, err = domain.ParseEmotion(*req.Emotion); err == nil {
			st, err = cf.ChooseEmotion(ctx, e)
		}
	default:
		err = fmt.Errorf("%w: %s takes no value, use proceed or create-another", domain.ErrStepLocked, step)
	}
	respondCharacterFlow(c, st, err)
}

func (h *Handler) gotoCharacterStep(c *gin.Context) {
	var req gotoRequest
	if !bindJSON(c, &req) {
		return
	}
	step, err := flow.ParseCharacterStep(req.Step)
	if err != nil {
		abortWithError(c, err)
		return
	}
	st, err := h.CharacterFlow.GoTo(step)
	respondCharacterFlow(c, st, err)
}

func (h *Handler) proceedWithCharacter(c *gin.Context) {
	var req characterIDRequest
	if !bindJSON(c, &req) {
		return
	}
	id, err := parseCharacterID(req.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	st, err := h.CharacterFlow.Proceed(c.Request.Context(), id)
	respondCharacterFlow(c, st, err)
}
