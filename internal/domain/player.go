package domain

import "time"

// Player es la ficha de contabilidad del jugador: saldo de puntos, último
// login diario y racha. La identidad es un digest de la credencial opaca,
// nunca la credencial misma.
type Player struct {
	ID        string    `json:"id"`
	Points    int       `json:"points"`
	LastLogin string    `json:"last_login,omitempty"` // YYYY-MM-DD (UTC)
	Streak    int       `json:"streak"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
