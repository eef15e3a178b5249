package ai

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Placeholders substituted by Prompts.Combine.
const (
	visualContextVar = "{{visual_context}}"
	questionVar      = "{{question}}"
)

// Prompts holds the instruction texts sent to the gateways.
type Prompts struct {
	// System asks the text gateway for the structured JSON answer.
	System string `yaml:"system"`
	// Vision asks the vision gateway to transcribe the image, nothing more.
	Vision string `yaml:"vision"`
	// Combined joins the visual context and the user's question for the text gateway.
	Combined string `yaml:"combined"`
}

const defaultSystemPrompt = `You are a professional software engineering tutor who is good at analyzing wrong answers and code.
Reply with a single JSON object and nothing else, using exactly these keys:
  "title":      a short title for the question,
  "analysis":   a step-by-step explanation of the problem and of the mistake,
  "conclusion": the final answer,
  "tags":       an array of short knowledge-point tags.
Write mathematical expressions in LaTeX and escape every backslash inside JSON strings.
Answer in the language of the question.`

const defaultVisionPrompt = `Transcribe everything in this image that is needed to solve the question it shows:
the full question text, formulas in LaTeX, code, tables, and a description of any figure.
Do not solve the question.`

const defaultCombinedPrompt = `The following content was extracted from an image the student uploaded:
{{visual_context}}

The student's question:
{{question}}`

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() Prompts {
	return Prompts{
		System:   defaultSystemPrompt,
		Vision:   defaultVisionPrompt,
		Combined: defaultCombinedPrompt,
	}
}

// LoadPrompts reads a YAML prompt file. Fields that are missing or blank keep their defaults.
// An empty path returns DefaultPrompts.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("reading prompts file: %w", err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Prompts{}, fmt.Errorf("parsing prompts file %s: %w", path, err)
	}

	if strings.TrimSpace(override.System) != "" {
		p.System = override.System
	}
	if strings.TrimSpace(override.Vision) != "" {
		p.Vision = override.Vision
	}
	if strings.TrimSpace(override.Combined) != "" {
		p.Combined = override.Combined
	}
	return p, nil
}

// Combine fills the combined template. A template without placeholders gets both
// parts appended so neither is ever dropped.
func (p Prompts) Combine(visualContext, question string) string {
	tmpl := p.Combined
	if !strings.Contains(tmpl, visualContextVar) && !strings.Contains(tmpl, questionVar) {
		return strings.TrimSpace(tmpl + "\n\n" + visualContext + "\n\n" + question)
	}
	r := strings.NewReplacer(visualContextVar, visualContext, questionVar, question)
	return r.Replace(tmpl)
}
