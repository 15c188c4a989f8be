package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"storybook/internal/domain"
	"storybook/internal/export"
	"storybook/internal/flow"
	"storybook/internal/reader"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// --- мастер темы --- //

type catalogResponse struct {
	Missions         []string `json:"missions"`
	Locations        []string `json:"locations"`
	Morals           []string `json:"morals"`
	LocationCustom   string   `json:"locationCustom"`
	LocationSurprise string   `json:"locationSurprise"`
}

func respondThemeFlow(c *gin.Context, st flow.ThemeFlowState, err error) {
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) themeState(c *gin.Context) {
	c.JSON(http.StatusOK, h.ThemeFlow.State())
}

func (h *Handler) themeCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, catalogResponse{
		Missions:         domain.Missions,
		Locations:        domain.Locations,
		Morals:           domain.Morals,
		LocationCustom:   domain.LocationCustom,
		LocationSurprise: domain.LocationSurprise,
	})
}

func (h *Handler) startThemeFlow(c *gin.Context) {
	st, err := h.ThemeFlow.Start()
	respondThemeFlow(c, st, err)
}

func (h *Handler) chooseMission(c *gin.Context) {
	var req flow.MissionChoice
	if !bindJSON(c, &req) {
		return
	}
	st, err := h.ThemeFlow.ChooseMission(c.Request.Context(), req)
	respondThemeFlow(c, st, err)
}

func (h *Handler) chooseLocation(c *gin.Context) {
	var req flow.LocationChoice
	if !bindJSON(c, &req) {
		return
	}
	st, err := h.ThemeFlow.ChooseLocation(c.Request.Context(), req)
	respondThemeFlow(c, st, err)
}

func (h *Handler) chooseMorale(c *gin.Context) {
	var req flow.MoraleChoice
	if !bindJSON(c, &req) {
		return
	}
	st, err := h.ThemeFlow.ChooseMorale(c.Request.Context(), req)
	respondThemeFlow(c, st, err)
}

func (h *Handler) nextThemeStep(c *gin.Context) {
	st, err := h.ThemeFlow.Next()
	respondThemeFlow(c, st, err)
}

func (h *Handler) backThemeStep(c *gin.Context) {
	c.JSON(http.StatusOK, h.ThemeFlow.Back())
}

func (h *Handler) resetTheme(c *gin.Context) {
	if err := h.Theme.Reset(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.ThemeFlow.Rewind())
}

// --- история --- //

type storyResponse struct {
	Story       domain.Story    `json:"story"`
	CurrentPage int             `json:"currentPage"`
	Generating  bool            `json:"generating"`
	Section     *reader.Section `json:"section,omitempty"`
}

// generateStory блокирует до ответа провайдера. Успех сбрасывает тему,
// поэтому мастер темы возвращается к первому шагу.
func (h *Handler) generateStory(c *gin.Context) {
	story, err := h.Generator.Generate(c.Request.Context())
	if err != nil {
		h.logger.Warn("Story generation failed", zap.Error(err))
		abortWithError(c, err)
		return
	}
	h.ThemeFlow.Rewind()

	resp := storyResponse{Story: story, CurrentPage: h.Stories.Page()}
	if section, err := h.Reader.Current(); err == nil {
		resp.Section = &section
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) abandonGeneration(c *gin.Context) {
	h.Generator.Abandon()
	c.Status(http.StatusNoContent)
}

func (h *Handler) getStory(c *gin.Context) {
	c.JSON(http.StatusOK, storyResponse{
		Story:       h.Stories.Story(),
		CurrentPage: h.Stories.Page(),
		Generating:  h.Generator.InProgress(),
	})
}

func (h *Handler) deleteStory(c *gin.Context) {
	if err := h.Stories.Reset(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondSection(c *gin.Context, s reader.Section, err error) {
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) currentPage(c *gin.Context) {
	s, err := h.Reader.Current()
	respondSection(c, s, err)
}

func (h *Handler) nextPage(c *gin.Context) {
	s, err := h.Reader.Next(c.Request.Context())
	respondSection(c, s, err)
}

func (h *Handler) prevPage(c *gin.Context) {
	s, err := h.Reader.Prev(c.Request.Context())
	respondSection(c, s, err)
}

func (h *Handler) jumpToPage(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: page must be a number", errBadRequest))
		return
	}
	s, err := h.Reader.JumpTo(c.Request.Context(), n)
	respondSection(c, s, err)
}

func (h *Handler) storyPDF(c *gin.Context) {
	hero, _ := h.Characters.Selected()
	var buf bytes.Buffer
	if err := export.WritePDF(&buf, h.Stories.Story(), hero); err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="histoire.pdf"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// --- озвучка --- //

type speechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (h *Handler) speak(c *gin.Context) {
	var req speechRequest
	if !bindJSON(c, &req) {
		return
	}
	audio, err := h.Narrator.Speak(c.Request.Context(), req.Text, req.Voice)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

func (h *Handler) clearSpeechCache(c *gin.Context) {
	if err := h.Narrator.ClearCache(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- ключ API --- //

type credentialRequest struct {
	Key string `json:"key" binding:"required"`
}

type credentialResponse struct {
	Configured bool   `json:"configured"`
	Masked     string `json:"masked"`
}

func (h *Handler) credentialState() credentialResponse {
	_, ok := h.Credentials.Credential()
	return credentialResponse{Configured: ok, Masked: h.Credentials.Masked()}
}

func (h *Handler) getCredential(c *gin.Context) {
	c.JSON(http.StatusOK, h.credentialState())
}

func (h *Handler) setCredential(c *gin.Context) {
	var req credentialRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Credentials.Set(c.Request.Context(), req.Key); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.credentialState())
}

func (h *Handler) clearCredential(c *gin.Context) {
	if err := h.Credentials.Clear(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
