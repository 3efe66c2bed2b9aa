package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"detective-llm/internal/service"
)

// UserHandler maneja el login diario y la contabilidad del jugador.
type UserHandler struct {
	logger  *zap.Logger
	players *service.PlayerService
	jwtSvc  *service.JWTService
}

func NewUserHandler(logger *zap.Logger, players *service.PlayerService, jwtSvc *service.JWTService) *UserHandler {
	return &UserHandler{logger: logger, players: players, jwtSvc: jwtSvc}
}

// Login maneja POST /user/login: crea al jugador si hace falta, acredita la
// recompensa diaria una vez por fecha y devuelve un token de sesión firmado.
func (h *UserHandler) Login(c *gin.Context) {
	playerID, ok := GetPlayerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
		return
	}

	before, _ := h.players.Balance(c.Request.Context(), playerID)
	player, err := h.players.DailyLogin(c.Request.Context(), playerID)
	if err != nil {
		h.logger.Error("daily login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log in"})
		return
	}

	awarded := player.Points != before.Points || before.ID == ""
	message := "Bienvenido de nuevo"
	if awarded {
		message = "Recompensa diaria acreditada (+50 puntos)"
	}

	resp := gin.H{
		"points":  player.Points,
		"streak":  player.Streak,
		"awarded": awarded,
		"message": message,
	}
	if h.jwtSvc != nil {
		if tok, err := h.jwtSvc.GenerateToken(playerID); err == nil {
			resp["access_token"] = tok.AccessToken
			resp["expires_in"] = tok.ExpiresIn
		} else {
			h.logger.Warn("token issue failed", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, resp)
}
