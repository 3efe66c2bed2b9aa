package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedOutput indica que no se pudo extraer ni reparar un objeto JSON
// de la salida cruda del LLM.
var ErrMalformedOutput = errors.New("malformed llm output")

var (
	reFenceStart = regexp.MustCompile("(?is)^\\s*```(?:json)?\\s*")
	reFenceEnd   = regexp.MustCompile("(?is)\\s*```\\s*$")

	// Un LLM bilingüe a veces emite puntuación fullwidth en posición de
	// delimitador. Solo se reescribe la que sigue a una comilla (separador
	// clave-valor o de elementos); la que vive dentro de un string se deja
	// intacta.
	reFullwidthColon = regexp.MustCompile(`(["'])\s*：`)
	reFullwidthComma = regexp.MustCompile(`(["'])\s*，`)
	reCurlyDouble    = regexp.MustCompile(`”\s*:`)
	reCurlySingle    = regexp.MustCompile(`’\s*:`)
)

// RepairAndParse extrae y repara un objeto JSON del texto crudo de un LLM:
// quita fences y BOM, recorta al primer objeto balanceado, normaliza
// puntuación fullwidth en posición de delimitador y tolera comas colgantes.
// Idempotente: reparar JSON ya válido devuelve el mismo valor.
func RepairAndParse(raw string) (json.RawMessage, error) {
	cleaned := cleanLLMJSONResponse(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedOutput)
	}

	obj := extractFirstJSONObject(cleaned)
	if obj == "" {
		return nil, fmt.Errorf("%w: no balanced object", ErrMalformedOutput)
	}

	obj = repairDelimiterPunctuation(obj)
	obj = stripTrailingCommas(obj)

	if !json.Valid([]byte(obj)) {
		return nil, fmt.Errorf("%w: still invalid after repair", ErrMalformedOutput)
	}
	return json.RawMessage(obj), nil
}

// RepairInto repara y deserializa en un destino tipado.
func RepairInto(raw string, out any) error {
	rm, err := RepairAndParse(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(rm, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// cleanLLMJSONResponse quita fences ```json ... ``` y BOM, dejando el
// contenido usable.
func cleanLLMJSONResponse(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "\uFEFF")
	s = reFenceStart.ReplaceAllString(s, "")
	s = reFenceEnd.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// extractFirstJSONObject devuelve el primer objeto {...} balanceado,
// respetando strings y escapes. Cadena vacía si no hay ninguno.
func extractFirstJSONObject(input string) string {
	start := strings.IndexByte(input, '{')
	if start == -1 {
		return ""
	}

	inString := false
	escape := false
	depth := 0

	for i := start; i < len(input); i++ {
		ch := input[i]

		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
			if depth < 0 {
				return ""
			}
		}
	}

	return ""
}

func repairDelimiterPunctuation(s string) string {
	s = reFullwidthColon.ReplaceAllString(s, "${1}:")
	s = reFullwidthComma.ReplaceAllString(s, "${1},")
	s = reCurlyDouble.ReplaceAllString(s, `":`)
	s = reCurlySingle.ReplaceAllString(s, `':`)
	return s
}

// stripTrailingCommas elimina comas colgantes antes de } o ], fuera de
// strings. Es la única desviación de gramática que se tolera además de la
// puntuación fullwidth.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inString {
			b.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			b.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // coma colgante, se descarta
			}
		}

		b.WriteByte(ch)
	}

	return b.String()
}
