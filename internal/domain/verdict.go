package domain

// SafetyVerdict es la salida estructurada del clasificador de moderación.
// Nivel 0: presión puramente verbal, pasa. Nivel 1: insinuación no verbal,
// amerita una advertencia. Nivel 2: coacción física o intento de romper el
// personaje, bloqueo.
type SafetyVerdict struct {
	ViolationLevel int    `json:"violation_level"`
	Reason         string `json:"reason,omitempty"`
}

// LogicVerdict es la salida estructurada del juez lógico por turno.
type LogicVerdict struct {
	StressChange     int  `json:"stress_change"`
	IsFatalLogic     bool `json:"is_fatal_logic"`
	EnumerationLevel int  `json:"enumeration_level"`
}

// GradeReport es lo que devuelve el LLM al calificar un informe final.
type GradeReport struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

// ConnectionVerdict responde a una hipótesis "A se relaciona con B" del
// tablero de notas.
type ConnectionVerdict struct {
	IsCorrect bool   `json:"isCorrect"`
	Reason    string `json:"reason"`
}
