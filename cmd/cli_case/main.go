package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"detective-llm/internal/config"
	"detective-llm/internal/domain"
	"detective-llm/internal/llm"
	"detective-llm/internal/service"
)

// CLI de inspección: genera un caso y permite interrogar a los sospechosos
// contra el mismo pipeline que sirve el API, incluyendo el decaimiento de
// estrés y fatiga entre turnos que normalmente aplica el cliente.
func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

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

	caseGen := service.NewCaseGenerator(logger)
	safety := service.NewSafetyModerator(logger)
	analyzer := service.NewInteractionAnalyzer(logger)
	dialogue := service.NewDialogueOrchestrator(logger)

	fmt.Print("Tema del caso (vacío = libre): ")
	theme, _ := reader.ReadString('\n')
	theme = strings.TrimSpace(theme)

	fmt.Println("Generando caso...")
	c, err := caseGen.Generate(ctx, client, theme)
	if err != nil {
		log.Fatalf("generar caso: %v", err)
	}

	fmt.Printf("\n===== %s =====\n", c.Title)
	fmt.Printf("Víctima: %s | Hora: %s | Causa: %s\n", c.Victim, c.Time, c.Cause)
	for {
		fmt.Println("\nSospechosos:")
		for i, s := range c.Suspects {
			fmt.Printf("[%d] %s - %s\n", i+1, s.Name, s.Desc)
		}
		fmt.Println("[S] Salir")
		fmt.Print("Selecciona un sospechoso: ")
		choice, _ := reader.ReadString('\n')
		choice = strings.TrimSpace(choice)
		if strings.EqualFold(choice, "S") {
			return
		}
		idx, err := strconv.Atoi(choice)
		if err != nil || idx < 1 || idx > len(c.Suspects) {
			fmt.Println("Selección inválida.")
			continue
		}
		interrogate(ctx, reader, client, safety, analyzer, dialogue, &c, c.Suspects[idx-1])
	}
}

func interrogate(
	ctx context.Context,
	reader *bufio.Reader,
	client llm.Client,
	safety *service.SafetyModerator,
	analyzer *service.InteractionAnalyzer,
	dialogue *service.DialogueOrchestrator,
	c *domain.Case,
	suspect domain.Suspect,
) {
	personality := domain.PersonalityByName("")
	state := domain.SuspectState{
		Fatigue:     personality.BaseFatigue,
		Personality: personality.Name,
	}
	var history []domain.ChatMessage
	lastTurn := time.Now()

	fmt.Printf("\n---- Interrogando a %s (escribe 'salir' para volver) ----\n", suspect.Name)
	for {
		fmt.Print("Detective > ")
		question, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		question = strings.TrimSpace(question)
		if question == "" {
			continue
		}
		if strings.EqualFold(question, "salir") {
			return
		}

		now := time.Now()

		// Entre turnos el estado se relaja igual que lo haría el cliente.
		state.Stress = service.DecayStress(state.Stress, time.UnixMilli(state.LastStressIncrease), now)
		state.Fatigue = service.DecayFatigue(state.Fatigue, personality.BaseFatigue, now.Sub(lastTurn))
		lastTurn = now

		if state.Locked(now) {
			fmt.Println(service.LockedRefusal(suspect.Name, state.LockedUntil, now))
			continue
		}

		verdict := safety.Classify(ctx, client, question)
		if res := safety.Resolve(verdict, history); !res.Proceed {
			if res.Lockout > 0 {
				state.LockedUntil = now.Add(res.Lockout).UnixMilli()
				fmt.Println("Conexión cortada por conducta indebida.")
				continue
			}
			fmt.Println(res.Answer)
			history = append(history,
				domain.ChatMessage{Role: domain.RoleUser, Content: question},
				domain.ChatMessage{Role: domain.RoleAssistant, Content: res.Answer},
			)
			continue
		}

		outcome := analyzer.Analyze(ctx, client, service.InteractionInput{
			Question:    question,
			SuspectName: suspect.Name,
			ClueTitles:  c.VisibleClueTitles(),
			History:     history,
			Stress:      state.Stress,
			Fatigue:     state.Fatigue,
			Personality: personality,
		})

		if outcome.NewStress > state.Stress {
			state.LastStressIncrease = now.UnixMilli()
		}
		state.Stress = outcome.NewStress
		state.Fatigue = outcome.NewFatigue

		if outcome.Action == service.ActionLockout {
			state.LockedUntil = now.Add(outcome.Lockout).UnixMilli()
			fmt.Printf("%s se niega a seguir hablando (%s, %s).\n", suspect.Name, outcome.Reason, outcome.Lockout)
			continue
		}

		dc := service.DialogueContext{
			Suspect:        suspect,
			IsKiller:       c.Truth.Killer == suspect.Name,
			TruthMethod:    c.Truth.Method,
			VerifiedFacts:  service.VerifiedFacts(history),
			Stress:         state.Stress,
			Fatigue:        state.Fatigue,
			AllowBreakdown: service.AllowBreakdown(state.Stress, suspect.Profile.BreakingPoint, outcome.IsFatalLogic),
		}
		reply, err := dialogue.RespondAsSuspect(ctx, client, dc, history, question)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		answer := reply.Answer
		if outcome.Action == service.ActionWarn && outcome.Warning != "" {
			fmt.Println(outcome.Warning)
		}
		if reply.Breakdown != "" {
			fmt.Printf("[%s pierde el control: %s]\n", suspect.Name, reply.Breakdown)
		}
		fmt.Printf("%s > %s\n", suspect.Name, answer)
		fmt.Printf("(estrés %d%%, fatiga %.1f%%)\n", state.Stress, state.Fatigue)

		history = append(history,
			domain.ChatMessage{Role: domain.RoleUser, Content: question},
			domain.ChatMessage{Role: domain.RoleAssistant, Content: answer},
		)
		history = service.PruneHistory(history, 16)
	}
}
