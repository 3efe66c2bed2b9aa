package service

import (
	"regexp"
	"strings"

	"detective-llm/internal/domain"
)

// Marcadores que el motor incrusta en respuestas de sistema. Se buscan en el
// historial reciente para decidir si ya hubo advertencia previa.
const (
	SystemWarningMarker = "[AVISO DEL SISTEMA]"
	InsightMarker       = "[INSIGHT]"
)

// Palabras clave con las que se reconoce una advertencia previa de
// enumeración en el historial.
var enumerationKeywords = []string{"enumera", "mecánic", "mecanic"}

// símbolos puros: ni letras ni dígitos en ningún alfabeto.
var symbolOnlyRe = regexp.MustCompile(`^[^\p{L}\p{N}]+$`)

// recentUserMessages devuelve los últimos n mensajes del jugador, recortados.
func recentUserMessages(history []domain.ChatMessage, n int) []string {
	var msgs []string
	for _, h := range history {
		if h.Role == domain.RoleUser {
			msgs = append(msgs, strings.TrimSpace(h.Content))
		}
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// repetitionCount cuenta apariciones exactas de la pregunta (recortada) en
// los últimos 5 mensajes del jugador.
func repetitionCount(history []domain.ChatMessage, question string) int {
	q := strings.TrimSpace(question)
	count := 0
	for _, m := range recentUserMessages(history, 5) {
		if m == q {
			count++
		}
	}
	return count
}

// isDegenerateInput marca entradas sin contenido: menos de 2 caracteres o
// compuesta solo de símbolos.
func isDegenerateInput(question string) bool {
	q := strings.TrimSpace(question)
	if len([]rune(q)) < 2 {
		return true
	}
	return symbolOnlyRe.MatchString(q)
}

// fatigueRefusalChance deriva la probabilidad de negarse por fatiga: 0 por
// debajo de 20, rampa lineal hasta 1 en 100.
func fatigueRefusalChance(fatigue float64) float64 {
	if fatigue >= 100 {
		return 1
	}
	if fatigue < 20 {
		return 0
	}
	return (fatigue - 20) / 80
}

// hasRecentSystemWarning busca una advertencia de sistema en los últimos 6
// mensajes (3 turnos).
func hasRecentSystemWarning(history []domain.ChatMessage) bool {
	recent := history
	if len(recent) > 6 {
		recent = recent[len(recent)-6:]
	}
	for _, h := range recent {
		if h.Role == domain.RoleAssistant && strings.Contains(h.Content, SystemWarningMarker) {
			return true
		}
	}
	return false
}

// hasRecentEnumerationWarning detecta si la última advertencia del sistema
// fue por enumeración o repetición mecánica.
func hasRecentEnumerationWarning(history []domain.ChatMessage) bool {
	recent := history
	if len(recent) > 6 {
		recent = recent[len(recent)-6:]
	}
	for _, h := range recent {
		if h.Role != domain.RoleAssistant || !strings.Contains(h.Content, SystemWarningMarker) {
			continue
		}
		lower := strings.ToLower(h.Content)
		for _, kw := range enumerationKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// insightCount cuenta cuántas revelaciones ya concedió el juez en la sesión.
func insightCount(history []domain.ChatMessage) int {
	count := 0
	for _, h := range history {
		if h.Role == domain.RoleAssistant && strings.HasPrefix(h.Content, InsightMarker) {
			count++
		}
	}
	return count
}

// VerifiedFacts extrae del historial las entidades ya confirmadas en el
// tablero de evidencias.
var verifiedRe = regexp.MustCompile(`\[VERIFIED:\s*(.*?)\]`)

func VerifiedFacts(history []domain.ChatMessage) []string {
	var facts []string
	for _, h := range history {
		if h.Role != domain.RoleAssistant {
			continue
		}
		for _, m := range verifiedRe.FindAllStringSubmatch(h.Content, -1) {
			if f := strings.TrimSpace(m[1]); f != "" {
				facts = append(facts, f)
			}
		}
	}
	return facts
}

// PruneHistory recorta el historial a las n entradas más recientes antes de
// mandarlo al LLM: acota el prompt y evita que contexto viejo corrompa el
// comportamiento.
func PruneHistory(history []domain.ChatMessage, n int) []domain.ChatMessage {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
