package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"detective-llm/internal/domain"
	"detective-llm/internal/llm"
)

// EnumerationWarning es la advertencia que se antepone a la respuesta cuando
// el juez detecta estructura repetitiva por primera vez.
const EnumerationWarning = SystemWarningMarker + " Se detectó estructura repetitiva en tus preguntas. No intentes obtener la verdad por enumeración de pistas: cuida la lógica de tus preguntas y cita tus evidencias."

// InteractionInput agrupa todo lo que necesita el análisis de un turno.
type InteractionInput struct {
	Question    string
	SuspectName string
	ClueTitles  []string
	History     []domain.ChatMessage
	Stress      int
	Fatigue     float64
	Personality domain.Personality
}

// InteractionAnalyzer combina heurísticas deterministas (repetición literal,
// entrada degenerada, fatiga) con un juicio semántico del LLM (delta de
// estrés, contradicción fatal, nivel de enumeración) para decidir si un turno
// pasa, advierte o bloquea.
type InteractionAnalyzer struct {
	logger *zap.Logger
	rand   func() float64
}

func NewInteractionAnalyzer(logger *zap.Logger) *InteractionAnalyzer {
	return &InteractionAnalyzer{logger: logger, rand: rand.Float64}
}

// WithRand inyecta la fuente de azar; los tests la fijan.
func (a *InteractionAnalyzer) WithRand(fn func() float64) *InteractionAnalyzer {
	a.rand = fn
	return a
}

// Analyze ejecuta los filtros en orden de costo: primero los deterministas,
// después la llamada al LLM. Un fallo del LLM degrada a PASS con la fatiga ya
// cobrada y el estrés intacto: un juez caído nunca deja la partida inservible.
func (a *InteractionAnalyzer) Analyze(ctx context.Context, client llm.Client, in InteractionInput) TurnOutcome {
	base := in.Personality.BaseFatigue

	// 1. Repetición literal: el historial trae solo turnos previos, así que
	// dos apariciones más el envío actual son tres. Bloquea en el tercer
	// envío, nunca antes.
	reps := repetitionCount(in.History, in.Question)
	if reps >= 2 {
		return TurnOutcome{
			Action:     ActionLockout,
			Reason:     ReasonMechanicalRepetition,
			Lockout:    LockoutLong,
			NewStress:  ClampStress(in.Stress),
			NewFatigue: ClampFatigue(in.Fatigue+10, base),
		}
	}

	// 2. Entrada degenerada: a la segunda ocurrencia, bloqueo corto.
	if isDegenerateInput(in.Question) && reps > 0 {
		return TurnOutcome{
			Action:     ActionLockout,
			Reason:     ReasonMechanicalRepetition,
			Lockout:    LockoutShort,
			NewStress:  ClampStress(in.Stress),
			NewFatigue: ClampFatigue(in.Fatigue+5, base),
		}
	}

	// 3. Fatiga: cada turno aceptado cobra el incremento de la personalidad,
	// incluso si el sorteo termina en negativa.
	newFatigue := ClampFatigue(in.Fatigue+in.Personality.FatiguePerTurn, base)
	if a.rand() < fatigueRefusalChance(newFatigue) {
		return TurnOutcome{
			Action:     ActionLockout,
			Reason:     ReasonFatigueRefusal,
			Lockout:    LockoutLong,
			NewStress:  ClampStress(in.Stress),
			NewFatigue: newFatigue,
		}
	}

	// 4. Juicio semántico.
	verdict, err := a.judge(ctx, client, in)
	if err != nil {
		a.logger.Warn("logic analysis failed, failing open", zap.Error(err), zap.String("suspect", in.SuspectName))
		return TurnOutcome{
			Action:     ActionPass,
			NewStress:  ClampStress(in.Stress),
			NewFatigue: newFatigue,
		}
	}

	newStress := RecomputeStress(in.Stress, verdict.StressChange)

	// 5. Enumeración.
	if verdict.EnumerationLevel >= 2 {
		return TurnOutcome{
			Action:       ActionLockout,
			Reason:       ReasonEnumerationL2,
			Lockout:      LockoutLong,
			NewStress:    newStress,
			NewFatigue:   newFatigue,
			IsFatalLogic: verdict.IsFatalLogic,
		}
	}
	if verdict.EnumerationLevel == 1 {
		if hasRecentEnumerationWarning(in.History) {
			return TurnOutcome{
				Action:       ActionLockout,
				Reason:       ReasonEnumerationL1Repeat,
				Lockout:      LockoutLong,
				NewStress:    newStress,
				NewFatigue:   newFatigue,
				IsFatalLogic: verdict.IsFatalLogic,
			}
		}
		return TurnOutcome{
			Action:       ActionWarn,
			Warning:      EnumerationWarning,
			NewStress:    newStress,
			NewFatigue:   newFatigue,
			IsFatalLogic: verdict.IsFatalLogic,
		}
	}

	// 6. Negativa por estrés alto sin haber sido realmente acorralado.
	if newStress > 85 && !verdict.IsFatalLogic && a.rand() < 0.3 {
		return TurnOutcome{
			Action:     ActionLockout,
			Reason:     ReasonStressRefusal,
			Lockout:    LockoutShort,
			NewStress:  newStress,
			NewFatigue: newFatigue,
		}
	}

	return TurnOutcome{
		Action:       ActionPass,
		NewStress:    newStress,
		NewFatigue:   newFatigue,
		IsFatalLogic: verdict.IsFatalLogic,
	}
}

func (a *InteractionAnalyzer) judge(ctx context.Context, client llm.Client, in InteractionInput) (domain.LogicVerdict, error) {
	recent := recentUserMessages(in.History, 3)

	prompt := buildAnalyzerPrompt(in.SuspectName, in.ClueTitles, recent, in.Question)
	raw, err := client.Complete(ctx, llm.Request{
		System:      "You are a Logic Analyzer. Output valid JSON.",
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: prompt}},
		Temperature: 0.1,
		JSONObject:  true,
	})
	if err != nil {
		return domain.LogicVerdict{}, fmt.Errorf("logic judge: %w", err)
	}

	var verdict domain.LogicVerdict
	if err := RepairInto(raw, &verdict); err != nil {
		return domain.LogicVerdict{}, err
	}

	// El contrato del prompt acota el delta a [-5, +25]; se re-acota por si
	// el juez delira.
	if verdict.StressChange < -5 {
		verdict.StressChange = -5
	}
	if verdict.StressChange > 25 {
		verdict.StressChange = 25
	}
	if verdict.EnumerationLevel < 0 {
		verdict.EnumerationLevel = 0
	}
	if verdict.EnumerationLevel > 2 {
		verdict.EnumerationLevel = 2
	}
	return verdict, nil
}

func buildAnalyzerPrompt(suspectName string, clueTitles, recentQuestions []string, question string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Analyze the player's question against %q.\n\n", suspectName))
	sb.WriteString("### Logic Rules:\n")
	sb.WriteString("1. **Stress Change**:\n")
	sb.WriteString("   - Fatal Logic (Direct contradiction found): +15 to +25\n")
	sb.WriteString("   - Sharp Question (Touching secrets/weakness): +8 to +12\n")
	sb.WriteString("   - Normal Question: 0 to +3\n")
	sb.WriteString("   - Meaningless/Polite: -5 (Relaxing)\n")
	sb.WriteString("2. **Enumeration Check**:\n")
	sb.WriteString("   - level 1: Question structure is very similar to recent ones (e.g., \"Is it A?\", \"Is it B?\").\n")
	sb.WriteString("   - level 2: Obvious brute-force guessing of clues or names without logic.\n")
	sb.WriteString("   - **Name Repetition**: Asking about different people one after another without logic is level 1.\n")
	sb.WriteString("   - **IMPORTANT**: A single question about one clue is NOT enumeration. Enumeration requires a *pattern* of 3+ similar questions in the Recent Questions list.\n")
	sb.WriteString("3. **Fatal Logic**: Set to true ONLY if the player points out a specific contradiction.\n\n")
	sb.WriteString("Output JSON:\n{\n    \"stress_change\": integer,\n    \"is_fatal_logic\": boolean,\n    \"enumeration_level\": 0|1|2\n}\n")
	sb.WriteString(fmt.Sprintf("\nKnown Clues: [%s]\n", strings.Join(clueTitles, ", ")))
	sb.WriteString(fmt.Sprintf("Recent Questions: %q\n", recentQuestions))
	sb.WriteString(fmt.Sprintf("\nPlayer Question: %s", question))

	return sb.String()
}
