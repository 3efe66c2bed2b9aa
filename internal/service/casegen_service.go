package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"detective-llm/internal/domain"
	"detective-llm/internal/llm"
)

var (
	// ErrGenerationFailed se devuelve cuando la etapa estructural agotó sus
	// intentos sin producir JSON parseable.
	ErrGenerationFailed = errors.New("case generation failed")
	// ErrThemeTooLong rechaza temas de más de 200 caracteres antes de gastar
	// una sola llamada upstream.
	ErrThemeTooLong = errors.New("theme too long")
)

const (
	maxThemeLen        = 200
	structureAttempts  = 3
	fallbackTitleSufix = " (traducción fallida)"
)

// stageOutcome etiqueta el resultado de la segunda etapa: la política
// "estructura antes que localización" es una rama explícita, no un catch.
type stageOutcome int

const (
	outcomeLocalized stageOutcome = iota
	outcomePivotFallback
)

// CaseGenerator orquesta la generación en dos etapas: estructura primero en
// idioma pivote (inglés, por fiabilidad estructural del LLM), localización
// después. Si la localización falla se devuelve la versión pivote.
type CaseGenerator struct {
	logger *zap.Logger
}

func NewCaseGenerator(logger *zap.Logger) *CaseGenerator {
	return &CaseGenerator{logger: logger}
}

// Generate produce un expediente completo a partir del tema. El resultado
// queda sellado con case_id y timestamp de creación (el corte duro de sesión
// se mide contra él).
func (g *CaseGenerator) Generate(ctx context.Context, client llm.Client, theme string) (domain.Case, error) {
	if len([]rune(theme)) > maxThemeLen {
		return domain.Case{}, ErrThemeTooLong
	}

	pivot, err := g.generateStructure(ctx, client, theme)
	if err != nil {
		return domain.Case{}, err
	}

	final, outcome := g.localize(ctx, client, pivot)
	if outcome == outcomePivotFallback {
		g.logger.Warn("localization failed, keeping pivot case", zap.String("title", pivot.Title))
	}

	final.CaseID = uuid.NewString()
	final.StartTime = time.Now().UnixMilli()
	return final, nil
}

// generateStructure es el único bucle con reintentos del motor: conteo fijo,
// sin backoff, apropiado para una acción iniciada por el usuario y ya
// limitada por tarifa.
func (g *CaseGenerator) generateStructure(ctx context.Context, client llm.Client, theme string) (domain.Case, error) {
	prompt := buildStructurePrompt(theme)

	var lastErr error
	for attempt := 1; attempt <= structureAttempts; attempt++ {
		g.logger.Info("generating case structure", zap.Int("attempt", attempt), zap.String("theme", theme))

		raw, err := client.Complete(ctx, llm.Request{
			System:      "You are a JSON generator. Output valid JSON in English.",
			Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: prompt}},
			Temperature: 0.7,
			JSONObject:  true,
		})
		if err != nil {
			lastErr = err
			continue
		}

		var c domain.Case
		if err := RepairInto(raw, &c); err != nil {
			lastErr = err
			continue
		}
		return c, nil
	}

	return domain.Case{}, fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
}

// localize pide traducir los valores conservando claves y estructura. El
// fallo aquí no tumba el pipeline: la garantía estructural manda.
func (g *CaseGenerator) localize(ctx context.Context, client llm.Client, pivot domain.Case) (domain.Case, stageOutcome) {
	pivotJSON, err := json.Marshal(pivot)
	if err != nil {
		return markPivotFallback(pivot), outcomePivotFallback
	}

	raw, err := client.Complete(ctx, llm.Request{
		System:      "You are a translator. Output valid JSON only.",
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: buildLocalizePrompt(string(pivotJSON))}},
		Temperature: 0.3,
		JSONObject:  true,
	})
	if err != nil {
		return markPivotFallback(pivot), outcomePivotFallback
	}

	var localized domain.Case
	if err := RepairInto(raw, &localized); err != nil {
		return markPivotFallback(pivot), outcomePivotFallback
	}
	return localized, outcomeLocalized
}

func markPivotFallback(pivot domain.Case) domain.Case {
	pivot.Title += fallbackTitleSufix
	return pivot
}

// La validación de consistencia (un solo culpable, pista falsa, evidencia
// electrónica oculta, nombres acordes al escenario) va horneada en el prompt,
// no re-verificada en código.
func buildStructurePrompt(theme string) string {
	var sb strings.Builder

	sb.WriteString("You are a legendary mystery novelist like Agatha Christie or Keigo Higashino.\n")
	sb.WriteString(fmt.Sprintf("Generate a **complex, high-IQ mystery scenario** based on the theme: %q.\n\n", theme))

	sb.WriteString("### Core Philosophy\n")
	sb.WriteString("- **No Simple Murders**: The case must involve a clever trick (Time manipulation, Physical mechanism, Psychological trap, or Locked Room).\n")
	sb.WriteString("- **Misdirection**: The most suspicious person is rarely the killer.\n")
	sb.WriteString("- **Logical Gaps**: Clues should not just be \"found\"; they must be \"interpreted\". (e.g., \"A wet umbrella in a dry room\" -> \"Someone entered recently from outside\").\n\n")

	sb.WriteString("### Requirements\n")
	sb.WriteString("1. **The Trick**: Must be ingenious. Exactly ONE killer.\n")
	sb.WriteString("2. **The Clues**:\n")
	sb.WriteString("   - Include **2 Red Herrings**: Clues that point to an innocent suspect but have a non-criminal explanation (e.g., \"Blood on shirt\" -> \"Nosebleed\").\n")
	sb.WriteString("   - **CRITICAL**: Do NOT include the words \"Red Herring\" or \"Clue\" in the title or content. Just describe the object.\n")
	sb.WriteString("   - Include **1 Critical Contradiction**: A clue that contradicts a suspect's alibi or statement.\n")
	sb.WriteString("   - **MANDATORY ELECTRONIC EVIDENCE**: You MUST include at least 1 electronic device (Phone, Laptop, USB, Server) as a clue.\n")
	sb.WriteString("     - Set \"is_hidden\": true for this clue.\n")
	sb.WriteString("     - Title: \"Encrypted Phone\" / \"Locked Laptop\" / \"Security Server\".\n")
	sb.WriteString("     - Content: The content MUST be the **decrypted data** that reveals a major secret (e.g., \"Deleted chat logs: 'I will kill him tonight'\", \"Hidden accounting files\", \"CCTV footage of the killer entering\").\n")
	sb.WriteString("3. **The Suspects**:\n")
	sb.WriteString("   - 3 suspects.\n")
	sb.WriteString("   - **Hidden Agendas**: Each suspect must have a secret they are hiding (e.g., theft, affair, fraud) that makes them act suspiciously, even if they aren't the killer.\n")
	sb.WriteString("   - **Names**: STRICTLY match the names to the cultural setting of the theme. Do NOT mix cultures (no Spanish names in a Tokyo setting, no Japanese names in a London setting).\n\n")

	sb.WriteString("### Output Format\n")
	sb.WriteString("Return a single JSON object containing the scenario.\nLanguage: **ENGLISH**.\n\n")
	sb.WriteString(`JSON Structure:
{
    "title": "String (Evocative title)",
    "victim": "String (Name + Role)",
    "time": "String (Specific time range)",
    "cause": "String (Medical cause of death)",
    "scene": ["String (Atmospheric detail)", "String (Environmental clue)", "String (Body condition)"],
    "searchable_areas": ["String (Short name, max 3 words)", "String", "String", "String", "String"],
    "suspects": [
        {
            "name": "String",
            "desc": "String (Role + Appearance)",
            "alibi": "String (Their claim)",
            "psychological_profile": {
                "breaking_point": 90,
                "stress_pattern": "String (e.g., 'Taps fingers when lying')",
                "breakdown_style": "String (e.g., 'Manic laughter')",
                "vulnerability": "String (e.g., 'Protects their daughter')"
            },
            "private_knowledge": {
                "secret": "String (The non-murder secret they are hiding)",
                "observation": "String (Something they saw but didn't say)",
                "bias": "String (Who they hate/suspect)"
            }
        }
    ],
    "clues": [
        {"location": "String", "title": "String", "content": "String (Detailed description)", "is_hidden": true/false}
    ],
    "radio_broadcasts": ["String (News that adds context)", "String (Weather report affecting alibis)"],
    "hidden_location": {
        "name": "String",
        "unlock_news": "String (News that reveals this place)",
        "clues": [{"title": "String", "content": "String", "is_hidden": false}]
    },
    "truth": {
        "killer": "String",
        "method": "String (Step-by-step explanation of the trick)",
        "motive": "String (Deep emotional or logical reason)"
    }
}`)

	return sb.String()
}

func buildLocalizePrompt(pivotJSON string) string {
	var sb strings.Builder

	sb.WriteString("You are a professional translator for a mystery game.\n")
	sb.WriteString("Task: Translate the following JSON content into **Spanish**.\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("1. **Keep all JSON keys in English** (e.g., \"title\", \"victim\", \"suspects\"). DO NOT translate keys.\n")
	sb.WriteString("2. **Translate all string values** to natural, suspenseful Spanish.\n")
	sb.WriteString("3. **Names**: Keep character names as they are; do NOT replace them with Spanish names.\n")
	sb.WriteString("4. **Structure**: Do NOT change the JSON structure or nesting.\n")
	sb.WriteString("5. **Searchable Areas**: Keep each location name EXTREMELY SHORT (max 3 words). Remove all adjectives. e.g., \"Dark and gloomy basement\" -> \"Sótano\".\n")
	sb.WriteString("6. **Clues**: If a clue title or content starts with \"Red Herring\" or \"Pista falsa\", REMOVE those words. Just keep the description of the object.\n")
	sb.WriteString("7. **Output**: Return ONLY the valid translated JSON object.\n\n")
	sb.WriteString("Input JSON:\n")
	sb.WriteString(pivotJSON)

	return sb.String()
}

// --- Tema diario ---

var dailyGenres = []string{"Cyberpunk", "Steampunk", "Capa y espada", "Lovecraftiano", "Ciencia ficción", "Noir", "Thriller moderno", "Sobrenatural"}

var themeStripRe = regexp.MustCompile(`[^\p{L}\p{N} ]`)

const fallbackDailyTheme = "Investigación del misterio histórico de hoy"

// DailyThemeGenerator produce el tema del desafío diario: un evento histórico
// de la fecha mezclado con un género al azar.
type DailyThemeGenerator struct {
	logger *zap.Logger
	rand   *rand.Rand
}

func NewDailyThemeGenerator(logger *zap.Logger) *DailyThemeGenerator {
	return &DailyThemeGenerator{
		logger: logger,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *DailyThemeGenerator) Generate(ctx context.Context, client llm.Client, date string) (string, error) {
	genre := dailyGenres[g.rand.Intn(len(dailyGenres))]

	prompt := fmt.Sprintf(`Generate a unique mystery game theme based on the historical events of %q (Month/Day) combined with the %q genre.
1. Find a historical event, crime, or strange occurrence that happened on this day in history (any year).
2. **Prioritize obscure or less common events** over very famous ones.
3. **MASHUP**: Re-imagine this event within the %q setting.
4. Output ONLY the theme title in Spanish.
5. CRITICAL: Do NOT include any punctuation, quotes, symbols, or prefixes. Just the words.
6. **Avoid Repetition**: Ensure the theme is distinct and creative.`, date, genre, genre)

	raw, err := client.Complete(ctx, llm.Request{
		Messages:         []domain.ChatMessage{{Role: domain.RoleUser, Content: prompt}},
		Temperature:      0.95,
		FrequencyPenalty: 0.8,
		MaxTokens:        60,
	})
	if err != nil {
		return "", fmt.Errorf("daily theme: %w", err)
	}

	theme := themeStripRe.ReplaceAllString(strings.TrimSpace(raw), "")
	theme = strings.Join(strings.Fields(theme), " ")
	if theme == "" {
		theme = fallbackDailyTheme
	}
	return theme, nil
}

// VerifyConnection juzga una hipótesis "A se relaciona con B" contra la
// verdad del caso.
func VerifyConnection(ctx context.Context, client llm.Client, truth domain.Truth, from, to string) (domain.ConnectionVerdict, error) {
	truthJSON, _ := json.Marshal(truth)

	prompt := fmt.Sprintf(`You are the Logic Judge of a mystery game.
Truth: %s

Player's Hypothesis: %q is related to %q.

Task: Determine if this connection is FACTUALLY CORRECT and RELEVANT to the truth.
- If A is the killer and B is the weapon used -> TRUE
- If A is the victim and B is the location of death -> TRUE
- If A and B are just random objects with no causal link -> FALSE

Output JSON ONLY: { "isCorrect": boolean, "reason": "Short explanation in Spanish" }`, truthJSON, from, to)

	raw, err := client.Complete(ctx, llm.Request{
		System:      "Output valid JSON only.",
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: prompt}},
		Temperature: 0.1,
		JSONObject:  true,
	})
	if err != nil {
		return domain.ConnectionVerdict{}, fmt.Errorf("verify connection: %w", err)
	}

	var verdict domain.ConnectionVerdict
	if err := RepairInto(raw, &verdict); err != nil {
		return domain.ConnectionVerdict{}, err
	}
	return verdict, nil
}
