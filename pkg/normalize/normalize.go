// Package normalize converts raw LLM replies into models.StructuredAnswer values.
//
// Models are prompted to reply with a JSON object, but replies routinely arrive
// wrapped in markdown fences, surrounded by prose, or with LaTeX backslashes left
// unescaped inside string values. Normalize tries a fixed sequence of parse stages
// and stops at the first one that yields a JSON object. When every stage fails it
// returns a fallback answer carrying the raw text, so it never fails.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/kiranshivaraju/reviewrelay/pkg/models"
)

// ErrParse is returned by a stage that could not extract a JSON object.
// It never escapes Normalize.
var ErrParse = errors.New("reply does not contain a JSON object")

const (
	FallbackTitle = "Unstructured result"
	FallbackTag   = "Unstructured"

	ErrorTitle = "Error"
	ErrorTag   = "Error"
)

// Stage identifies which step of the pipeline produced an answer.
type Stage string

const (
	StageStrict    Stage = "strict"
	StageExtracted Stage = "extracted"
	StageRepaired  Stage = "repaired"
	StageFallback  Stage = "fallback"
)

// Result is the outcome of a normalization run.
type Result struct {
	Answer models.StructuredAnswer
	Stage  Stage
}

// Fallback reports whether no stage could parse the reply.
func (r Result) Fallback() bool {
	return r.Stage == StageFallback
}

type stage struct {
	name  Stage
	parse func(raw string) (models.StructuredAnswer, error)
}

// Stages run in order; the first one that returns a nil error wins.
var pipeline = []stage{
	{StageStrict, parseStrict},
	{StageExtracted, parseCandidate},
	{StageRepaired, parseRepaired},
}

var reFencedJSON = regexp.MustCompile("(?is)```json(.*?)```")

// Normalize returns the structured answer for raw. It never fails.
func Normalize(raw string) models.StructuredAnswer {
	return Run(raw).Answer
}

// Run is Normalize plus the stage that produced the answer.
func Run(raw string) Result {
	for _, st := range pipeline {
		answer, err := st.parse(raw)
		if err != nil {
			continue
		}
		if strings.TrimSpace(answer.Analysis) == "" && raw != "" {
			answer.Analysis = raw
		}
		return Result{Answer: answer, Stage: st.name}
	}
	return Result{Answer: fallback(raw), Stage: StageFallback}
}

// Degraded builds the answer returned to clients when the upstream call failed.
func Degraded(message string) models.StructuredAnswer {
	return models.StructuredAnswer{
		Title:    ErrorTitle,
		Analysis: message,
		Tags:     []string{ErrorTag},
	}
}

// ExtractFenced returns the body of the first ```json fenced block in s.
func ExtractFenced(s string) (string, bool) {
	m := reFencedJSON.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// Repair doubles every backslash in s, then collapses each resulting run of four
// back to two. Already-escaped input comes out unchanged, and Repair(Repair(s))
// equals Repair(s).
func Repair(s string) string {
	doubled := strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(doubled, `\\\\`, `\\`)
}

func parseStrict(raw string) (models.StructuredAnswer, error) {
	return decodeObject(raw)
}

func parseCandidate(raw string) (models.StructuredAnswer, error) {
	return decodeTrimmed(candidate(raw))
}

func parseRepaired(raw string) (models.StructuredAnswer, error) {
	return decodeTrimmed(Repair(candidate(raw)))
}

func candidate(raw string) string {
	if body, ok := ExtractFenced(raw); ok {
		return body
	}
	return raw
}

// decodeTrimmed parses the substring from the first '{' to the last '}'.
func decodeTrimmed(s string) (models.StructuredAnswer, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return models.StructuredAnswer{}, ErrParse
	}
	return decodeObject(s[start : end+1])
}

func decodeObject(s string) (models.StructuredAnswer, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &fields); err != nil || fields == nil {
		return models.StructuredAnswer{}, ErrParse
	}

	answer := models.StructuredAnswer{
		Title:      textField(fields["title"]),
		Analysis:   textField(fields["analysis"]),
		Conclusion: textField(fields["conclusion"]),
		Tags:       tagsField(fields["tags"]),
	}
	if answer.Conclusion == "" {
		answer.Conclusion = textField(fields["answer"])
	}
	return answer, nil
}

// textField returns a JSON string's value, or the compact JSON text of any other
// non-null value.
func textField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// tagsField accepts an array or a comma-separated string. Blank tags are dropped;
// the result is never nil.
func tagsField(raw json.RawMessage) []string {
	tags := []string{}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		for _, item := range items {
			if tag := strings.TrimSpace(textField(item)); tag != "" {
				tags = append(tags, tag)
			}
		}
		return tags
	}

	joined := textField(raw)
	for _, part := range strings.FieldsFunc(joined, func(r rune) bool { return r == ',' || r == '，' }) {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func fallback(raw string) models.StructuredAnswer {
	return models.StructuredAnswer{
		Title:    FallbackTitle,
		Analysis: raw,
		Tags:     []string{FallbackTag},
	}
}
