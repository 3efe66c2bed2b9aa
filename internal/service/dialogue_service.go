package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"detective-llm/internal/domain"
	"detective-llm/internal/llm"
)

// historyWindow es el máximo de mensajes del historial que llegan al LLM.
const historyWindow = 8

var breakdownRe = regexp.MustCompile(`\[BREAKDOWN:\s*(.*?)\]`)

// SuspectReply es la respuesta de un turno de interrogatorio con los tokens
// de control ya extraídos e interpretados.
type SuspectReply struct {
	Answer string
	// Breakdown trae el estilo de derrumbe si el personaje emitió el
	// marcador; vacío en caso contrario.
	Breakdown string
	// Verified lista entidades que pasan a "confirmadas" en el tablero.
	Verified []string
}

// DialogueOrchestrator construye el prompt de persona, invoca al LLM y
// post-procesa la respuesta (marcadores fuera de banda, latencia simulada).
type DialogueOrchestrator struct {
	logger *zap.Logger
	wait   func(ctx context.Context, d time.Duration)
}

func NewDialogueOrchestrator(logger *zap.Logger) *DialogueOrchestrator {
	return &DialogueOrchestrator{logger: logger, wait: waitWithContext}
}

// WithWait inyecta la espera; los tests la anulan.
func (o *DialogueOrchestrator) WithWait(fn func(ctx context.Context, d time.Duration)) *DialogueOrchestrator {
	o.wait = fn
	return o
}

// waitWithContext duerme con temporizador cancelable, nunca con un sleep
// ciego.
func waitWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// RespondAsSuspect genera la réplica del sospechoso. La latencia se alarga
// deliberadamente con el estrés para simular a un interrogado pensando; es
// contrato hacia el cliente, no un detalle de rendimiento.
func (o *DialogueOrchestrator) RespondAsSuspect(
	ctx context.Context,
	client llm.Client,
	dc DialogueContext,
	history []domain.ChatMessage,
	question string,
) (SuspectReply, error) {
	pruned := PruneHistory(history, historyWindow)
	messages := make([]domain.ChatMessage, 0, len(pruned)+1)
	messages = append(messages, pruned...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: question})

	raw, err := client.Complete(ctx, llm.Request{
		System:      BuildSuspectPrompt(dc),
		Messages:    messages,
		Temperature: 0.8,
		MaxTokens:   300,
	})
	if err != nil {
		return SuspectReply{}, fmt.Errorf("suspect reply: %w", err)
	}

	o.wait(ctx, ThinkingDelay(dc.Stress))

	return parseSuspectReply(raw), nil
}

// parseSuspectReply separa los tokens de control del texto hablado.
func parseSuspectReply(raw string) SuspectReply {
	reply := SuspectReply{}

	if m := breakdownRe.FindStringSubmatch(raw); m != nil {
		reply.Breakdown = strings.TrimSpace(m[1])
	}
	for _, m := range verifiedRe.FindAllStringSubmatch(raw, -1) {
		if f := strings.TrimSpace(m[1]); f != "" {
			reply.Verified = append(reply.Verified, f)
		}
	}

	cleaned := breakdownRe.ReplaceAllString(raw, "")
	cleaned = verifiedRe.ReplaceAllString(cleaned, "")
	reply.Answer = strings.TrimSpace(cleaned)
	return reply
}

// RespondAsJudge contesta en modo acompañante cuando ningún sospechoso está
// seleccionado.
func (o *DialogueOrchestrator) RespondAsJudge(
	ctx context.Context,
	client llm.Client,
	truth domain.Truth,
	history []domain.ChatMessage,
	question string,
) (string, error) {
	pruned := PruneHistory(history, historyWindow)
	messages := make([]domain.ChatMessage, 0, len(pruned)+1)
	messages = append(messages, pruned...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: question})

	answer, err := client.Complete(ctx, llm.Request{
		System:      BuildJudgePrompt(truth, insightCount(history)),
		Messages:    messages,
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		return "", fmt.Errorf("judge reply: %w", err)
	}

	// El juez no se estresa; aplica la latencia base.
	o.wait(ctx, ThinkingDelay(0))

	return strings.TrimSpace(answer), nil
}

// GradeResult es el dictamen del informe final con la letra ya resuelta.
type GradeResult struct {
	Grade   string
	Score   int
	Comment string
}

const gradingFallbackComment = "Fallo del sistema de calificación; se asigna nota por defecto."

// GradeFinalReport califica el informe final. Un fallo de parseo degrada a la
// nota C con comentario explicativo, nunca a un error de la petición.
func (o *DialogueOrchestrator) GradeFinalReport(
	ctx context.Context,
	client llm.Client,
	truth domain.Truth,
	report string,
) GradeResult {
	raw, err := client.Complete(ctx, llm.Request{
		System:      BuildGradingPrompt(truth),
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: report}},
		Temperature: 0.2,
		JSONObject:  true,
	})
	if err != nil {
		o.logger.Warn("grading call failed, using fallback grade", zap.Error(err))
		return GradeResult{Grade: "C", Comment: gradingFallbackComment}
	}

	var parsed domain.GradeReport
	if err := RepairInto(raw, &parsed); err != nil {
		o.logger.Warn("grading parse failed, using fallback grade", zap.Error(err))
		return GradeResult{Grade: "C", Comment: gradingFallbackComment}
	}

	if parsed.Score < 0 {
		parsed.Score = 0
	}
	if parsed.Score > MaxScore {
		parsed.Score = MaxScore
	}

	grade := GradeForScore(parsed.Score)
	if IsGiveUp(report) {
		grade = "F"
	}
	return GradeResult{Grade: grade, Score: parsed.Score, Comment: parsed.Comment}
}

// GameOverAnswer es el cierre forzoso cuando la sesión superó los 90 minutos.
const GameOverAnswer = "[TIEMPO AGOTADO] El interrogatorio superó los 90 minutos y el caso fue transferido de oficio a la superioridad. Perdiste tu última oportunidad."
