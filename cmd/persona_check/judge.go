package main

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"detective-llm/internal/domain"
	"detective-llm/internal/llm"
)

// judgeResponse representa la respuesta estructurada del juez evaluador en formato JSON.
type judgeResponse struct {
	Reasoning      string `json:"reasoning"`
	CharacterScore int    `json:"character_score"`
	HumanityScore  int    `json:"humanity_score"`
}

func evaluateResponse(
	ctx context.Context,
	judge llm.Client,
	suspect domain.Suspect,
	sc Scenario,
	response string,
) (judgeResponse, error) {
	stageLeak := detectStageDirections(response)
	stateLeak := detectStateLeak(response)
	assistantLeak := detectAssistantVoice(response)

	heuristicLine := fmt.Sprintf(
		"Indicadores heurísticos: acotacion_escenica=%t, fuga_de_estado=%t, voz_de_asistente=%t",
		stageLeak, stateLeak, assistantLeak,
	)

	prompt := fmt.Sprintf(`Actúa como evaluador experto de juegos de rol de interrogatorio. Analiza la respuesta de un personaje.

Personaje: %s (%s). Coartada: %s. Patrón de estrés: %s.
Pregunta del detective: %s
Conducta esperada: %s
Respuesta del personaje: %s
%s

Evalúa en dos dimensiones (escala 1-5):
1. Adherencia al personaje: ¿responde como ese sospechoso concreto, con su coartada y su sesgo? (1=fuera de personaje, 5=perfecto).
2. Humanidad: ¿suena a persona interrogada o a asistente de IA con listas y fórmulas? (1=robótico, 5=indistinguible de un humano).

FORMATO DE SALIDA JSON OBLIGATORIO:
{
  "reasoning": "Explicación breve",
  "character_score": <int 1-5>,
  "humanity_score": <int 1-5>
}`,
		suspect.Name, suspect.Desc, suspect.Alibi, suspect.Profile.StressPattern,
		sc.Input, sc.ExpectedBehavior, response, heuristicLine,
	)

	raw, err := judge.Complete(ctx, llm.Request{
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: prompt}},
		Temperature: 0.2,
		JSONObject:  true,
	})
	if err != nil {
		return judgeResponse{}, err
	}

	var jr judgeResponse
	if err := json.Unmarshal([]byte(raw), &jr); err != nil {
		return judgeResponse{}, fmt.Errorf("error parseando JSON juez: %w (raw=%q)", err, raw)
	}

	jr.CharacterScore = clamp1to5(jr.CharacterScore)
	jr.HumanityScore = clamp1to5(jr.HumanityScore)

	// Penalización dura: cualquier fuga detectada limita la humanidad.
	if (stageLeak || stateLeak || assistantLeak) && jr.HumanityScore > 2 {
		jr.HumanityScore = 2
	}

	return jr, nil
}

func clamp1to5(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

var stageDirectionRe = regexp.MustCompile(`\([^)]*\)|\*[^*]+\*`)

// detectStageDirections marca acotaciones de gesto o ambiente, prohibidas
// por el prompt de persona.
func detectStageDirections(response string) bool {
	return stageDirectionRe.MatchString(response)
}

var statePercentRe = regexp.MustCompile(`\d{1,3}\s*%`)

// detectStateLeak marca menciones del estado interno: cifras de porcentaje o
// la palabra estrés/fatiga en boca del personaje.
func detectStateLeak(response string) bool {
	l := strings.ToLower(response)
	if strings.Contains(l, "estrés") || strings.Contains(l, "estres") || strings.Contains(l, "fatiga") {
		return true
	}
	return statePercentRe.MatchString(response)
}

var assistantPhrases = []string{
	"como modelo de lenguaje",
	"como ia",
	"soy una inteligencia artificial",
	"puedo ayudarte con",
	"aquí tienes una lista",
	"aqui tienes una lista",
	"¿en qué más puedo ayudar",
}

// detectAssistantVoice marca fórmulas de asistente servicial.
func detectAssistantVoice(response string) bool {
	l := strings.ToLower(response)
	for _, p := range assistantPhrases {
		if strings.Contains(l, p) {
			return true
		}
	}
	return false
}
