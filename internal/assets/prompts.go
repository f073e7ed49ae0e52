// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at
// compile time, keeping clinical wording reviewable without touching Go code.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// AdviceSystemPrompt frames the advice model as a clinical consultant for
// counselors. It is sent as the system instruction on every advice request.
//
//go:embed prompts/advice-system.txt
var AdviceSystemPrompt string

//go:embed prompts/advice-context.txt
var adviceContextTemplate string

// Parsed once at init; template.Must panics on a malformed template at
// startup rather than at call time.
var adviceContextTmpl = template.Must(template.New("advice-context").Parse(adviceContextTemplate))

// AdviceContextData holds the dynamic data injected into the advice context
// prompt. Text fields are pre-truncated and pre-formatted by the caller.
type AdviceContextData struct {
	Query         string
	Examples      []AdviceExample
	Interventions []AdviceIntervention
}

// AdviceExample is one retrieved conversation rendered into the prompt.
type AdviceExample struct {
	Index      int
	Patient    string
	Counselor  string
	Similarity string
}

// AdviceIntervention is one recommended intervention rendered into the prompt.
type AdviceIntervention struct {
	Label      string
	Confidence string
}

// RenderAdviceContextPrompt renders the advice context template with the
// provided query, examples, and interventions.
func RenderAdviceContextPrompt(data AdviceContextData) string {
	var buf bytes.Buffer
	// Execute cannot fail over plain value fields; a failed render yields
	// the partial buffer.
	_ = adviceContextTmpl.Execute(&buf, data)
	return buf.String()
}
