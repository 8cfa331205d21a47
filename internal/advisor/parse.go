package advisor

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"agriguardian/internal/models"
)

var (
	thinkTag    = regexp.MustCompile(models.ThinkTag)
	fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
)

func cleanOutput(output string) string {
	return strings.TrimSpace(thinkTag.ReplaceAllString(output, ""))
}

// decodeStrict accepts output only if it is exactly one JSON object that fills
// target without unknown keys and passes validation.
func decodeStrict(output string, target any, validate *validator.Validate) error {
	dec := json.NewDecoder(strings.NewReader(output))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after object")
	}
	return validate.Struct(target)
}

// decodeLoose digs a flat object out of free-form output. Candidates are tried in
// order: a fenced code block, the first balanced brace span, the whole text. The
// same candidates are then taken from the output with escaped quotes unescaped.
func decodeLoose(output string) (map[string]string, bool) {
	texts := []string{output}
	if unescaped := strings.ReplaceAll(output, `\"`, `"`); unescaped != output {
		texts = append(texts, unescaped)
	}
	for _, text := range texts {
		for _, candidate := range candidates(text) {
			if fields, ok := decodeObject(candidate); ok {
				return fields, true
			}
		}
	}
	return nil, false
}

func candidates(output string) []string {
	var out []string
	if m := fencedBlock.FindStringSubmatch(output); m != nil {
		out = append(out, m[1])
	}
	if span, ok := firstBalanced(output); ok {
		out = append(out, span)
	}
	return append(out, strings.TrimSpace(output))
}

// firstBalanced returns the first {...} span whose braces balance, ignoring braces in strings.
func firstBalanced(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// decodeObject parses a JSON object, stringifying non-string values and dropping nulls.
func decodeObject(s string) (map[string]string, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, false
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			fields[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			fields[k] = string(b)
		}
	}
	return fields, true
}
