package service

import (
	"fmt"
	"math"
	"time"
)

// Acciones posibles de un turno tras pasar por los filtros.
type TurnAction string

const (
	ActionPass    TurnAction = "PASS"
	ActionWarn    TurnAction = "WARNING"
	ActionLockout TurnAction = "LOCKOUT"
)

// Motivos internos de bloqueo. Los que son violación de juego se mapean al
// código de violación del cliente en la capa HTTP.
const (
	ReasonMechanicalRepetition = "MECHANICAL_REPETITION"
	ReasonFatigueRefusal       = "FATIGUE_REFUSAL"
	ReasonEnumerationL2        = "AI_ENUMERATION_L2"
	ReasonEnumerationL1Repeat  = "AI_ENUMERATION_L1_REPEAT"
	ReasonStressRefusal        = "STRESS_REFUSAL"
)

// Duraciones de bloqueo.
const (
	LockoutLong  = 5 * time.Minute
	LockoutShort = time.Minute
)

// TurnOutcome es el veredicto de la máquina de estados para un turno: acción,
// estado nuevo ya acotado y metadatos para la respuesta.
type TurnOutcome struct {
	Action       TurnAction
	Reason       string
	Lockout      time.Duration
	NewStress    int
	NewFatigue   float64
	IsFatalLogic bool
	Warning      string
}

// ClampStress acota el estrés a [0,100].
func ClampStress(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ClampFatigue acota la fatiga a [base,100]: nunca decae por debajo de la
// fatiga base de la personalidad.
func ClampFatigue(v, base float64) float64 {
	if v < base {
		return base
	}
	if v > 100 {
		return 100
	}
	return v
}

// Constantes de decaimiento entre turnos. Tasas por segundo, calcadas del
// bucle de relajación del cliente original.
const (
	stressIdleWindow     = 15 * time.Second
	stressDecayPerSecond = 2
	fatigueDecaySlow     = 0.33 // por segundo, con fatiga alta
	fatigueDecayFast     = 0.5  // por segundo, con fatiga <= 20
)

// DecayStress relaja el estrés 2 puntos por segundo una vez que el sospechoso
// lleva más de 15 segundos sin un aumento.
func DecayStress(stress int, lastIncrease time.Time, now time.Time) int {
	if stress <= 0 || lastIncrease.IsZero() {
		return ClampStress(stress)
	}
	idle := now.Sub(lastIncrease)
	if idle <= stressIdleWindow {
		return ClampStress(stress)
	}
	secs := int(idle.Seconds() - stressIdleWindow.Seconds())
	return ClampStress(stress - secs*stressDecayPerSecond)
}

// DecayFatigue hace decaer la fatiga hacia la base de la personalidad: 0.5
// por segundo mientras está en 20 o menos, 0.33 por encima.
func DecayFatigue(fatigue, base float64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return ClampFatigue(fatigue, base)
	}
	for secs > 0 && fatigue > base {
		rate := fatigueDecaySlow
		if fatigue <= 20 {
			rate = fatigueDecayFast
		}
		step := math.Min(secs, 1)
		fatigue -= rate * step
		secs -= step
	}
	return ClampFatigue(fatigue, base)
}

// RecomputeStress aplica el delta juzgado por el LLM más la bonificación de
// relajación: una pregunta inocua (delta <= 2) sobre un sospechoso ya tenso
// (estrés > 10) descuenta 5 extra.
func RecomputeStress(current, change int) int {
	next := current + change
	if change <= 2 && current > 10 {
		next -= 5
	}
	return ClampStress(next)
}

// AllowBreakdown decide la condición momentánea de derrumbe: solo cuando el
// estrés alcanzó el punto de quiebre Y el turno fue una contradicción fatal.
// No es un estado persistido, se evalúa turno a turno.
func AllowBreakdown(stress, breakingPoint int, isFatalLogic bool) bool {
	return stress >= breakingPoint && isFatalLogic
}

// LockedRefusal es la respuesta fija de un sospechoso bloqueado. No pasa por
// ningún componente respaldado por LLM.
func LockedRefusal(suspectName string, lockedUntil int64, now time.Time) string {
	remaining := time.UnixMilli(lockedUntil).Sub(now)
	mins := int(math.Ceil(remaining.Minutes()))
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("%s se cruza de brazos y se niega a hablar. (%d min restantes)", suspectName, mins)
}

// ThinkingDelay simula a un interrogado pensando bajo presión: la latencia
// crece con el estrés. Es contrato de UX, no optimización.
func ThinkingDelay(stress int) time.Duration {
	switch {
	case stress >= 80:
		return 4 * time.Second
	case stress >= 40:
		return 2500 * time.Millisecond
	default:
		return 1500 * time.Millisecond
	}
}
