// Package api exposes the storybook over a local JSON API.
package api

import (
	"net/http"
	"time"

	"storybook/internal/flow"
	"storybook/internal/reader"
	"storybook/internal/service"
	"storybook/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

// Deps собирает все компоненты, которые обслуживает API.
type Deps struct {
	Characters    *store.CharacterStore
	Theme         *store.ThemeStore
	Stories       *store.StoryStore
	Credentials   *store.CredentialStore
	CharacterFlow *flow.CharacterFlow
	ThemeFlow     *flow.ThemeFlow
	Generator     *service.StoryGenerator
	Narrator      *service.Narrator
	Reader        *reader.Reader
}

// Handler обрабатывает HTTP запросы storybook.
type Handler struct {
	Deps
	logger *zap.Logger
}

func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	return &Handler{Deps: deps, logger: logger.Named("Handler")}
}

// RegisterRoutes регистрирует маршруты /api.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api", requireHydrated(h.Characters, h.Theme, h.Stories, h.Credentials))

	characters := g.Group("/characters")
	{
		characters.GET("", h.listCharacters)
		characters.POST("/draft", h.updateDraft)
		characters.POST("/draft/save", h.saveDraft)
		characters.DELETE("/draft", h.resetDraft)
		characters.POST("/:id/select", h.selectCharacter)
		characters.DELETE("/:id", h.removeCharacter)
	}

	characterFlow := g.Group("/character-flow")
	{
		characterFlow.GET("", h.characterFlowState)
		characterFlow.POST("/start", h.startCharacterFlow)
		characterFlow.POST("/step", h.submitCharacterStep)
		characterFlow.POST("/goto", h.gotoCharacterStep)
		characterFlow.POST("/create-another", h.createAnotherCharacter)
		characterFlow.POST("/proceed", h.proceedWithCharacter)
	}

	theme := g.Group("/theme")
	{
		theme.GET("", h.themeState)
		theme.GET("/catalog", h.themeCatalog)
		theme.POST("/start", h.startThemeFlow)
		theme.POST("/mission", h.chooseMission)
		theme.POST("/location", h.chooseLocation)
		theme.POST("/morale", h.chooseMorale)
		theme.POST("/next", h.nextThemeStep)
		theme.POST("/back", h.backThemeStep)
		theme.DELETE("", h.resetTheme)
	}

	story := g.Group("/story")
	{
		story.POST("/generate", h.generateStory)
		story.POST("/abandon", h.abandonGeneration)
		story.GET("", h.getStory)
		story.DELETE("", h.deleteStory)
		story.GET("/page", h.currentPage)
		story.POST("/next", h.nextPage)
		story.POST("/prev", h.prevPage)
		story.PUT("/page/:n", h.jumpToPage)
		story.GET("/pdf", h.storyPDF)
	}

	g.POST("/speech", h.speak)
	g.DELETE("/speech/cache", h.clearSpeechCache)

	g.GET("/credential", h.getCredential)
	g.PUT("/credential", h.setCredential)
	g.DELETE("/credential", h.clearCredential)
}

// RouterConfig настраивает NewRouter.
type RouterConfig struct {
	Env            string
	AllowedOrigins []string
	// Metrics exposes /metrics; it registers collectors globally, so tests leave it off.
	Metrics bool
}

// NewRouter собирает gin.Engine с логированием, CORS, health и метриками.
func NewRouter(cfg RouterConfig, h *Handler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(ZapLogger(logger.Named("HTTP")))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", RequestIDHeader}
	corsConfig.ExposeHeaders = []string{RequestIDHeader, "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// middleware applies only to routes registered after Use
	if cfg.Metrics {
		p := ginprometheus.NewPrometheus("storybook")
		p.Use(router)
	}

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	h.RegisterRoutes(router)
	return router
}
