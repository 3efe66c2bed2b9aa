package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"detective-llm/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	userH *UserHandler,
	gameH *GameHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	// Toda ruta respaldada por el proveedor exige la credencial opaca.
	authed := r.Group("", CredentialsMiddleware(), PlayerIdentityMiddleware(jwtSvc))
	authed.POST("/user/login", userH.Login)
	authed.POST("/generate", gameH.Generate)
	authed.POST("/ask", gameH.Ask)
	authed.POST("/daily-theme", gameH.DailyTheme)
	authed.POST("/verify-connection", gameH.VerifyConnection)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
