package domain

import "time"

// Roles del historial de conversación.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage es una entrada del historial que el cliente reenvía en cada
// turno. El historial se poda a los 8 mensajes más recientes antes de llegar
// al LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Personality define el temperamento fijo de un sospechoso: fatiga base a la
// que decae y cuánto sube la fatiga por turno aceptado.
type Personality struct {
	Name           string
	BaseFatigue    float64
	FatiguePerTurn float64
}

// Conjunto cerrado de personalidades. Los nombres viajan en el request de
// /ask tal cual.
var personalities = map[string]Personality{
	"impulsivo":  {Name: "impulsivo", BaseFatigue: 20, FatiguePerTurn: 5},
	"terco":      {Name: "terco", BaseFatigue: 10, FatiguePerTurn: 3},
	"fragil":     {Name: "fragil", BaseFatigue: 5, FatiguePerTurn: 4},
	"sereno":     {Name: "sereno", BaseFatigue: 0, FatiguePerTurn: 3},
	"calculador": {Name: "calculador", BaseFatigue: 15, FatiguePerTurn: 4},
}

// DefaultPersonality se usa cuando el cliente no manda una válida.
const DefaultPersonality = "sereno"

// PersonalityByName resuelve una personalidad; desconocida cae en sereno.
func PersonalityByName(name string) Personality {
	if p, ok := personalities[name]; ok {
		return p
	}
	return personalities[DefaultPersonality]
}

// PersonalityNames devuelve el conjunto de nombres válidos.
func PersonalityNames() []string {
	names := make([]string, 0, len(personalities))
	for n := range personalities {
		names = append(names, n)
	}
	return names
}

// SuspectState es el estado por sospechoso que viaja ida y vuelta con el
// cliente: el servidor lo muta en un turno y lo devuelve.
type SuspectState struct {
	Stress             int     `json:"stress"`
	Fatigue            float64 `json:"fatigue"`
	Personality        string  `json:"personality"`
	LockedUntil        int64   `json:"lockedUntil,omitempty"`            // ms unix, 0 = libre
	LastStressIncrease int64   `json:"lastStressIncreaseTime,omitempty"` // ms unix
}

// Locked indica si el sospechoso sigue en ventana de bloqueo.
func (s SuspectState) Locked(now time.Time) bool {
	return s.LockedUntil > now.UnixMilli()
}
