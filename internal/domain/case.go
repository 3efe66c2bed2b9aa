package domain

import "time"

// SessionDuration es el límite duro de una partida: pasado este tiempo
// cualquier pregunta devuelve el cierre forzoso del caso.
const SessionDuration = 90 * time.Minute

// Case es el expediente completo generado por el LLM. Inmutable una vez
// creado; solo se le añaden pistas ocultas cuando el jugador las desbloquea.
// Los nombres JSON son el contrato con el cliente y con el prompt de
// generación, no se traducen.
type Case struct {
	CaseID          string          `json:"case_id,omitempty"`
	Title           string          `json:"title"`
	Victim          string          `json:"victim"`
	Time            string          `json:"time"`
	Cause           string          `json:"cause"`
	Scene           []string        `json:"scene"`
	SearchableAreas []string        `json:"searchable_areas"`
	Suspects        []Suspect       `json:"suspects"`
	Clues           []Clue          `json:"clues"`
	RadioBroadcasts []string        `json:"radio_broadcasts,omitempty"`
	HiddenLocation  *HiddenLocation `json:"hidden_location,omitempty"`
	Truth           Truth           `json:"truth"`
	// StartTime en milisegundos unix; el cliente lo reenvía en cada turno.
	StartTime int64 `json:"startTime,omitempty"`
	// Points es contabilidad del colaborador externo (saldo restante),
	// adjunta al expediente solo en la respuesta de /generate.
	Points int `json:"points,omitempty"`
}

type Suspect struct {
	Name             string               `json:"name"`
	Desc             string               `json:"desc"`
	Alibi            string               `json:"alibi"`
	Profile          PsychologicalProfile `json:"psychological_profile"`
	PrivateKnowledge PrivateKnowledge     `json:"private_knowledge"`
}

type PsychologicalProfile struct {
	BreakingPoint  int    `json:"breaking_point"`
	StressPattern  string `json:"stress_pattern"`
	BreakdownStyle string `json:"breakdown_style"`
	Vulnerability  string `json:"vulnerability"`
}

type PrivateKnowledge struct {
	Secret      string `json:"secret"`
	Observation string `json:"observation"`
	Bias        string `json:"bias"`
}

// Clue describe un fenómeno, nunca una conclusión. Las pistas ocultas solo
// aparecen tras un registro de lugar o un evento de hackeo.
type Clue struct {
	Location string `json:"location,omitempty"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	IsHidden bool   `json:"is_hidden"`
}

type HiddenLocation struct {
	Name       string `json:"name"`
	UnlockNews string `json:"unlock_news"`
	Clues      []Clue `json:"clues"`
}

type Truth struct {
	Killer string `json:"killer"`
	Method string `json:"method"`
	Motive string `json:"motive"`
}

// SuspectByName busca por nombre exacto dentro del expediente.
func (c *Case) SuspectByName(name string) (Suspect, bool) {
	for _, s := range c.Suspects {
		if s.Name == name {
			return s, true
		}
	}
	return Suspect{}, false
}

// Expired indica si la sesión superó el corte duro de 90 minutos.
func (c *Case) Expired(now time.Time) bool {
	if c.StartTime == 0 {
		return false
	}
	start := time.UnixMilli(c.StartTime)
	return now.Sub(start) > SessionDuration
}

// VisibleClueTitles lista los títulos de pistas no ocultas, en orden.
func (c *Case) VisibleClueTitles() []string {
	titles := make([]string, 0, len(c.Clues))
	for _, cl := range c.Clues {
		if cl.IsHidden {
			continue
		}
		titles = append(titles, cl.Title)
	}
	return titles
}
