package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio.
//
// DATABASE_URL y REDIS_ADDR son opcionales: sin base de datos los saldos de
// jugador viven en memoria, y sin Redis el limitador y el espejo de bloqueos
// usan sus variantes en memoria.
type Config struct {
	HTTPPort       string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL    string `env:"DATABASE_URL"`
	JWTSecret      string `env:"JWT_SECRET"`
	LLMBaseURL     string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel       string `env:"LLM_MODEL" envDefault:"gpt-5.1"`
	LLMTimeoutSecs int    `env:"LLM_TIMEOUT_SECONDS" envDefault:"45"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	GenerateLimit  int    `env:"GENERATE_RATE_LIMIT" envDefault:"5"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
