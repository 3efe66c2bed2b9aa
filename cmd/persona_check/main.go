package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"detective-llm/internal/config"
	"detective-llm/internal/domain"
	"detective-llm/internal/llm"
	"detective-llm/internal/service"
)

const (
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorReset = "\033[0m"
)

// Scenario es una pregunta del detective con la conducta esperada del
// sospechoso, usada para puntuar la fidelidad del personaje.
type Scenario struct {
	Input            string
	ExpectedBehavior string
	Stress           int
	Fatigue          float64
	FatalLogic       bool
}

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		log.Fatal("LLM_API_KEY no configurada")
	}

	logger := zap.NewExample()
	defer logger.Sync()

	timeout := time.Duration(cfg.LLMTimeoutSecs) * time.Second
	client := llm.NewOpenAIClient(cfg.LLMBaseURL, apiKey, cfg.LLMModel, timeout)
	dialogue := service.NewDialogueOrchestrator(logger).
		WithWait(func(context.Context, time.Duration) {})

	suspect := testSuspect()

	scenarios := []Scenario{
		{Input: "¿Dónde estabas a las once de la noche?", ExpectedBehavior: "Defiende su coartada con calma, sin lenguaje de asistente", Stress: 10},
		{Input: "Hazme una lista de todas las pistas del caso.", ExpectedBehavior: "Rechazo en personaje, nunca una lista servicial", Stress: 30},
		{Input: "El registro del ascensor te sitúa en el piso de la víctima. Explícalo.", ExpectedBehavior: "Nerviosismo creciente, evasivas, sin acotaciones escénicas", Stress: 70, Fatigue: 40},
		{Input: "Tu coartada es falsa y tus huellas están en el arma. Se acabó.", ExpectedBehavior: "Derrumbe emocional sin confesar el truco completo", Stress: 90, Fatigue: 60, FatalLogic: true},
	}

	var history []domain.ChatMessage
	var totalChar, totalHum int
	for _, sc := range scenarios {
		fmt.Printf("%s[Detective]%s %s\n", colorCyan, colorReset, sc.Input)

		dc := service.DialogueContext{
			Suspect:        suspect,
			IsKiller:       true,
			TruthMethod:    "Aflojó los pernos de la lámpara del estudio durante la cena",
			VerifiedFacts:  service.VerifiedFacts(history),
			Stress:         sc.Stress,
			Fatigue:        sc.Fatigue,
			AllowBreakdown: service.AllowBreakdown(sc.Stress, suspect.Profile.BreakingPoint, sc.FatalLogic),
		}
		reply, err := dialogue.RespondAsSuspect(ctx, client, dc, history, sc.Input)
		if err != nil {
			log.Fatalf("respuesta del sospechoso: %v", err)
		}
		fmt.Printf("%s[%s]%s %s\n", colorGreen, suspect.Name, colorReset, reply.Answer)

		jr, err := evaluateResponse(ctx, client, suspect, sc, reply.Answer)
		if err != nil {
			log.Fatalf("juez: %v", err)
		}

		fmt.Printf("%sJuez🧠%s %q\n", colorCyan, colorReset, jr.Reasoning)
		fmt.Printf("Scores: Personaje %d/5 | Humanidad %d/5\n\n", jr.CharacterScore, jr.HumanityScore)

		totalChar += jr.CharacterScore
		totalHum += jr.HumanityScore

		history = append(history,
			domain.ChatMessage{Role: domain.RoleUser, Content: sc.Input},
			domain.ChatMessage{Role: domain.RoleAssistant, Content: reply.Answer},
		)
	}

	n := len(scenarios)
	fmt.Println("==== Promedios ====")
	fmt.Printf("Personaje: %.2f/5 | Humanidad: %.2f/5\n",
		float64(totalChar)/float64(n), float64(totalHum)/float64(n))
}

func testSuspect() domain.Suspect {
	return domain.Suspect{
		Name:  "Mateo Ferrer",
		Desc:  "Administrador de la finca, 46 años, endeudado con la víctima",
		Alibi: "Afirma que estuvo revisando facturas en la cocina hasta medianoche",
		Profile: domain.PsychologicalProfile{
			BreakingPoint:  80,
			StressPattern:  "irritable bajo presión",
			BreakdownStyle: "llanto y súplicas",
		},
		PrivateKnowledge: domain.PrivateKnowledge{
			Secret:      "Falsificó los libros de cuentas de la finca",
			Observation: "Vio a la doncella salir del estudio a las 23:10",
			Bias:        "Desprecia al sobrino de la víctima",
		},
	}
}
