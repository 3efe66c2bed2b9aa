package service

import "strings"

// MaxScore es el tope de la calificación del informe final.
const MaxScore = 10000

// Cortes de calificación; los límites son inclusivos (8500 exacto es A).
const (
	gradeSCutoff = MaxScore * 95 / 100
	gradeACutoff = MaxScore * 85 / 100
	gradeBCutoff = MaxScore * 75 / 100
)

// Variación de puntos del jugador según la letra obtenida.
var gradePoints = map[string]int{
	"S": 20,
	"A": 15,
	"B": 10,
	"C": -5,
	"F": -10,
}

// GradeForScore mapea la puntuación a letra por percentiles fijos.
func GradeForScore(score int) string {
	switch {
	case score >= gradeSCutoff:
		return "S"
	case score >= gradeACutoff:
		return "A"
	case score >= gradeBCutoff:
		return "B"
	default:
		return "C"
	}
}

// GradePointsDelta devuelve el ajuste de saldo para una letra.
func GradePointsDelta(grade string) int {
	return gradePoints[grade]
}

// IsGiveUp detecta la rendición explícita o un informe casi vacío; ambos
// fuerzan F sin importar lo que diga el calificador.
func IsGiveUp(report string) bool {
	trimmed := strings.TrimSpace(report)
	if len([]rune(trimmed)) < 5 {
		return true
	}
	lower := strings.ToLower(trimmed)
	return strings.Contains(lower, "me rindo") || strings.Contains(lower, "abandono el caso")
}

// ReportMarker identifica que la pregunta del jugador es la entrega del
// informe final y no una consulta al juez.
const ReportMarker = "INFORME FINAL"

// IsClosingReport reconoce una entrega de informe final.
func IsClosingReport(question string) bool {
	return strings.Contains(question, ReportMarker)
}
