package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"detective-llm/internal/domain"
	"detective-llm/internal/llm"
	"detective-llm/internal/service"
)

// ClientFactory construye el cliente LLM de la petición a partir de las
// credenciales que viajan en los headers.
type ClientFactory func(baseURL, apiKey, model string) llm.Client

// GameHandler concentra los endpoints del motor de sesión: generación de
// casos, interrogatorio, tema diario y verificación de conexiones.
type GameHandler struct {
	logger    *zap.Logger
	caseGen   *service.CaseGenerator
	themeGen  *service.DailyThemeGenerator
	safety    *service.SafetyModerator
	analyzer  *service.InteractionAnalyzer
	dialogue  *service.DialogueOrchestrator
	players   *service.PlayerService
	limiter   service.RateLimiter
	lockouts  service.LockoutStore
	themes    service.ThemeCache
	newClient ClientFactory

	defaultBaseURL string
	defaultModel   string
}

func NewGameHandler(
	logger *zap.Logger,
	caseGen *service.CaseGenerator,
	themeGen *service.DailyThemeGenerator,
	safety *service.SafetyModerator,
	analyzer *service.InteractionAnalyzer,
	dialogue *service.DialogueOrchestrator,
	players *service.PlayerService,
	limiter service.RateLimiter,
	lockouts service.LockoutStore,
	themes service.ThemeCache,
	newClient ClientFactory,
	defaultBaseURL, defaultModel string,
) *GameHandler {
	return &GameHandler{
		logger:         logger,
		caseGen:        caseGen,
		themeGen:       themeGen,
		safety:         safety,
		analyzer:       analyzer,
		dialogue:       dialogue,
		players:        players,
		limiter:        limiter,
		lockouts:       lockouts,
		themes:         themes,
		newClient:      newClient,
		defaultBaseURL: defaultBaseURL,
		defaultModel:   defaultModel,
	}
}

func (h *GameHandler) clientFor(c *gin.Context, model string) llm.Client {
	apiKey, _ := GetAPIKey(c)
	baseURL := GetBaseURL(c)
	if baseURL == "" {
		baseURL = h.defaultBaseURL
	}
	if model == "" {
		model = h.defaultModel
	}
	return h.newClient(baseURL, apiKey, model)
}

// Generate maneja POST /generate.
func (h *GameHandler) Generate(c *gin.Context) {
	var req struct {
		Theme string `json:"theme"`
		Model string `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid generate request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	playerID, _ := GetPlayerID(c)

	if h.limiter != nil && !h.limiter.Allow(playerID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "demasiadas generaciones, espera un momento"})
		return
	}

	player, err := h.players.Spend(c.Request.Context(), playerID, service.GenerateCost)
	if errors.Is(err, service.ErrInsufficientPoints) {
		c.JSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("Puntos insuficientes. Abrir un caso cuesta %d puntos.", service.GenerateCost)})
		return
	}
	if err != nil {
		h.logger.Error("spend points failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not charge points"})
		return
	}

	newCase, err := h.caseGen.Generate(c.Request.Context(), h.clientFor(c, req.Model), req.Theme)
	if errors.Is(err, service.ErrThemeTooLong) {
		if _, rerr := h.players.Grant(c.Request.Context(), playerID, service.GenerateCost); rerr != nil {
			h.logger.Error("refund failed", zap.Error(rerr))
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "El tema no puede superar los 200 caracteres"})
		return
	}
	if err != nil {
		if _, rerr := h.players.Grant(c.Request.Context(), playerID, service.GenerateCost); rerr != nil {
			h.logger.Error("refund failed", zap.Error(rerr))
		}
		h.logger.Error("case generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate case"})
		return
	}

	newCase.Points = player.Points
	c.JSON(http.StatusOK, newCase)
}

type askRequest struct {
	Question               string               `json:"question" binding:"required"`
	CaseData               domain.Case          `json:"caseData" binding:"required"`
	History                []domain.ChatMessage `json:"history"`
	Model                  string               `json:"model"`
	Stress                 int                  `json:"stress"`
	Fatigue                float64              `json:"fatigue"`
	Personality            string               `json:"personality"`
	SuspectName            string               `json:"suspectName"`
	LockedUntil            int64                `json:"lockedUntil"`
	LastStressIncreaseTime int64                `json:"lastStressIncreaseTime"`
}

type askResponse struct {
	Answer       string   `json:"answer"`
	NewStress    *int     `json:"newStress,omitempty"`
	NewFatigue   *float64 `json:"newFatigue,omitempty"`
	Lockout      int64    `json:"lockout,omitempty"`
	IsGameOver   bool     `json:"isGameOver,omitempty"`
	Grade        string   `json:"grade,omitempty"`
	Points       *int     `json:"points,omitempty"`
	PointsChange *int     `json:"pointsChange,omitempty"`
	Breakdown    string   `json:"breakdown,omitempty"`
	Verified     []string `json:"verified,omitempty"`
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// Ask maneja POST /ask: expiración, bloqueos, seguridad, análisis de
// interacción y finalmente la réplica en persona, en ese orden estricto.
func (h *GameHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid ask request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	now := time.Now()
	if req.CaseData.Expired(now) {
		c.JSON(http.StatusOK, askResponse{Answer: service.GameOverAnswer, IsGameOver: true})
		return
	}

	if req.SuspectName == "" {
		h.askJudge(c, req)
		return
	}
	h.askSuspect(c, req, now)
}

// askJudge atiende el modo acompañante: preguntas meta y el informe final.
func (h *GameHandler) askJudge(c *gin.Context, req askRequest) {
	client := h.clientFor(c, req.Model)

	if service.IsClosingReport(req.Question) {
		result := h.dialogue.GradeFinalReport(c.Request.Context(), client, req.CaseData.Truth, req.Question)

		playerID, _ := GetPlayerID(c)
		change := service.GradePointsDelta(result.Grade)
		player, err := h.players.Grant(c.Request.Context(), playerID, change)
		if err != nil {
			h.logger.Error("grade payout failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not settle points"})
			return
		}

		answer := fmt.Sprintf("%s\n%s\n(Puntuación: %d/%d)", result.Grade, result.Comment, result.Score, service.MaxScore)
		c.JSON(http.StatusOK, askResponse{
			Answer:       answer,
			Grade:        result.Grade,
			Points:       intPtr(player.Points),
			PointsChange: intPtr(change),
		})
		return
	}

	answer, err := h.dialogue.RespondAsJudge(c.Request.Context(), client, req.CaseData.Truth, req.History, req.Question)
	if err != nil {
		h.logger.Error("judge reply failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not answer"})
		return
	}
	c.JSON(http.StatusOK, askResponse{Answer: answer})
}

// askSuspect atiende el modo interrogatorio contra un sospechoso concreto.
func (h *GameHandler) askSuspect(c *gin.Context, req askRequest, now time.Time) {
	suspect, ok := req.CaseData.SuspectByName(req.SuspectName)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown suspect"})
		return
	}

	// Bloqueo vigente: ni el estado que reenvía el cliente ni el espejo del
	// servidor permiten saltarse la ventana. Cero llamadas al LLM.
	lockedUntil := req.LockedUntil
	if h.lockouts != nil {
		if until, err := h.lockouts.Until(c.Request.Context(), req.CaseData.CaseID, req.SuspectName); err == nil && until.UnixMilli() > lockedUntil {
			lockedUntil = until.UnixMilli()
		}
	}
	if lockedUntil > now.UnixMilli() {
		c.JSON(http.StatusOK, askResponse{
			Answer:  service.LockedRefusal(req.SuspectName, lockedUntil, now),
			Lockout: lockedUntil - now.UnixMilli(),
		})
		return
	}

	// El decaimiento por inactividad se aplica desde la marca que reenvía
	// el cliente, antes de cualquier análisis del turno.
	personality := domain.PersonalityByName(req.Personality)
	stress := req.Stress
	fatigue := req.Fatigue
	if req.LastStressIncreaseTime > 0 {
		last := time.UnixMilli(req.LastStressIncreaseTime)
		stress = service.DecayStress(stress, last, now)
		fatigue = service.DecayFatigue(fatigue, personality.BaseFatigue, now.Sub(last))
	}

	client := h.clientFor(c, req.Model)

	verdict := h.safety.Classify(c.Request.Context(), client, req.Question)
	if res := h.safety.Resolve(verdict, req.History); !res.Proceed {
		if res.Lockout > 0 {
			h.mirrorLockout(c, req.CaseData.CaseID, req.SuspectName, res.Lockout)
			c.JSON(http.StatusOK, askResponse{
				Answer:    "VIOLATION_VIOLENCE",
				Lockout:   res.Lockout.Milliseconds(),
				NewStress: intPtr(stress),
			})
			return
		}
		c.JSON(http.StatusOK, askResponse{Answer: res.Answer, NewStress: intPtr(stress)})
		return
	}

	outcome := h.analyzer.Analyze(c.Request.Context(), client, service.InteractionInput{
		Question:    req.Question,
		SuspectName: req.SuspectName,
		ClueTitles:  req.CaseData.VisibleClueTitles(),
		History:     req.History,
		Stress:      stress,
		Fatigue:     fatigue,
		Personality: personality,
	})

	if outcome.Action == service.ActionLockout {
		answer, lockout := violationContract(outcome)
		h.mirrorLockout(c, req.CaseData.CaseID, req.SuspectName, lockout)
		c.JSON(http.StatusOK, askResponse{
			Answer:     answer,
			Lockout:    lockout.Milliseconds(),
			NewStress:  intPtr(outcome.NewStress),
			NewFatigue: floatPtr(outcome.NewFatigue),
		})
		return
	}

	dc := service.DialogueContext{
		Suspect:        suspect,
		IsKiller:       req.CaseData.Truth.Killer == req.SuspectName,
		TruthMethod:    req.CaseData.Truth.Method,
		VerifiedFacts:  service.VerifiedFacts(req.History),
		Stress:         outcome.NewStress,
		Fatigue:        outcome.NewFatigue,
		AllowBreakdown: service.AllowBreakdown(outcome.NewStress, suspect.Profile.BreakingPoint, outcome.IsFatalLogic),
	}

	reply, err := h.dialogue.RespondAsSuspect(c.Request.Context(), client, dc, req.History, req.Question)
	if err != nil {
		h.logger.Error("suspect reply failed", zap.Error(err), zap.String("suspect", req.SuspectName))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not answer"})
		return
	}

	answer := reply.Answer
	if outcome.Action == service.ActionWarn && outcome.Warning != "" {
		answer = outcome.Warning + "\n\n" + answer
	}

	c.JSON(http.StatusOK, askResponse{
		Answer:     answer,
		NewStress:  intPtr(outcome.NewStress),
		NewFatigue: floatPtr(outcome.NewFatigue),
		Breakdown:  reply.Breakdown,
		Verified:   reply.Verified,
	})
}

// violationContract mapea los motivos internos de bloqueo al código de
// violación que entiende el cliente. Las infracciones de juego se normalizan
// a enumeración con bloqueo largo; las negativas por fatiga o estrés
// conservan su motivo y su duración.
func violationContract(outcome service.TurnOutcome) (string, time.Duration) {
	switch outcome.Reason {
	case service.ReasonMechanicalRepetition, service.ReasonEnumerationL2, service.ReasonEnumerationL1Repeat:
		return "VIOLATION_ENUMERATION", service.LockoutLong
	default:
		return outcome.Reason, outcome.Lockout
	}
}

func (h *GameHandler) mirrorLockout(c *gin.Context, caseID, suspect string, d time.Duration) {
	if h.lockouts == nil {
		return
	}
	if err := h.lockouts.Lock(c.Request.Context(), caseID, suspect, d); err != nil {
		h.logger.Warn("lockout mirror failed", zap.Error(err))
	}
}

// DailyTheme maneja POST /daily-theme.
func (h *GameHandler) DailyTheme(c *gin.Context) {
	var req struct {
		Date  string `json:"date" binding:"required"`
		Model string `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid daily theme request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if h.themes != nil {
		if theme, err := h.themes.Get(c.Request.Context(), req.Date); err == nil && theme != "" {
			c.JSON(http.StatusOK, gin.H{"theme": theme})
			return
		}
	}

	theme, err := h.themeGen.Generate(c.Request.Context(), h.clientFor(c, req.Model), req.Date)
	if err != nil {
		h.logger.Error("daily theme failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate theme"})
		return
	}

	if h.themes != nil {
		if err := h.themes.Set(c.Request.Context(), req.Date, theme); err != nil {
			h.logger.Warn("theme cache write failed", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"theme": theme})
}

// VerifyConnection maneja POST /verify-connection. La verificación apuesta
// un punto que se reembolsa cuando la hipótesis es correcta.
func (h *GameHandler) VerifyConnection(c *gin.Context) {
	var req struct {
		Connection struct {
			From string `json:"from" binding:"required"`
			To   string `json:"to" binding:"required"`
		} `json:"connection" binding:"required"`
		CaseData domain.Case `json:"caseData" binding:"required"`
		Model    string      `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify connection request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	playerID, _ := GetPlayerID(c)
	player, err := h.players.Spend(c.Request.Context(), playerID, service.VerifyStake)
	if errors.Is(err, service.ErrInsufficientPoints) {
		c.JSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("Puntos insuficientes. Verificar una hipótesis cuesta %d punto.", service.VerifyStake)})
		return
	}
	if err != nil {
		h.logger.Error("spend points failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not charge points"})
		return
	}

	verdict, err := service.VerifyConnection(c.Request.Context(), h.clientFor(c, req.Model), req.CaseData.Truth, req.Connection.From, req.Connection.To)
	if err != nil {
		h.logger.Error("verify connection failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify"})
		return
	}

	points := player.Points
	if verdict.IsCorrect {
		refunded, err := h.players.Grant(c.Request.Context(), playerID, service.VerifyStake)
		if err != nil {
			h.logger.Error("refund failed", zap.Error(err))
		} else {
			points = refunded.Points
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"isCorrect": verdict.IsCorrect,
		"reason":    verdict.Reason,
		"points":    points,
	})
}
