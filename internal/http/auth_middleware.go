package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"detective-llm/internal/service"
)

const (
	apiKeyKey   = "upstream_api_key"
	baseURLKey  = "upstream_base_url"
	playerIDKey = "player_id"
)

// CredentialsMiddleware exige la credencial opaca del proveedor en X-Api-Key
// y propaga el X-Base-Url opcional. La credencial nunca se registra.
func CredentialsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-Api-Key"))
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			c.Abort()
			return
		}
		c.Set(apiKeyKey, apiKey)
		c.Set(baseURLKey, strings.TrimSpace(c.GetHeader("X-Base-Url")))
		c.Next()
	}
}

// PlayerIdentityMiddleware resuelve la identidad del jugador: un Bearer token
// válido tiene prioridad; sin token (o con token inválido) se cae al digest
// de la credencial, que es la identidad canónica del libro de puntos.
func PlayerIdentityMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if jwtSvc != nil && strings.HasPrefix(strings.ToLower(header), "bearer ") {
			token := strings.TrimSpace(header[len("Bearer "):])
			if claims, err := jwtSvc.ParseAccessToken(token); err == nil {
				c.Set(playerIDKey, claims.PlayerID)
				c.Next()
				return
			}
		}
		if apiKey, ok := GetAPIKey(c); ok {
			c.Set(playerIDKey, service.CredentialDigest(apiKey))
		}
		c.Next()
	}
}

// GetAPIKey obtiene la credencial del proveedor desde el contexto.
func GetAPIKey(c *gin.Context) (string, bool) {
	val, ok := c.Get(apiKeyKey)
	if !ok {
		return "", false
	}
	key, ok := val.(string)
	return key, ok && key != ""
}

// GetBaseURL obtiene el base URL del proveedor, vacío si no se envió.
func GetBaseURL(c *gin.Context) string {
	val, ok := c.Get(baseURLKey)
	if !ok {
		return ""
	}
	url, _ := val.(string)
	return url
}

// GetPlayerID obtiene la identidad del jugador desde el contexto.
func GetPlayerID(c *gin.Context) (string, bool) {
	val, ok := c.Get(playerIDKey)
	if !ok {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}
