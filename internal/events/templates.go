package events

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	runboatstrings "runboat/pkg/strings"
)

// maxMessageLen keeps messages well below the API server's Event limits.
const maxMessageLen = 1024

// MessageTemplateEngine provides dynamic message generation for events.
type MessageTemplateEngine struct {
	mu        sync.RWMutex
	templates map[EventReason]*template.Template
	sources   map[EventReason]string
}

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[EventReason]*template.Template),
		sources:   make(map[EventReason]string),
	}
	engine.loadDefaultTemplates()
	return engine
}

func (e *MessageTemplateEngine) loadDefaultTemplates() {
	defaults := map[EventReason]string{
		ReasonBuildDeploying:   `Deploying {{.Repo}}@{{.Ref}} at {{.Commit | trunc 8}} (generation {{.Generation}})`,
		ReasonBuildRedeploying: `Redeploying {{.Repo}}@{{.Ref}} for new commit {{.Commit | trunc 8}} (generation {{.Generation}})`,
		ReasonBuildStarted:     `Build {{.Name}} is ready`,
		ReasonBuildStopping:    `Stopping build {{.Name}}`,
		ReasonBuildStopped:     `Build {{.Name}} scaled to zero`,
		ReasonBuildDropping:    `Deleting resources of build {{.Name}}`,
		ReasonBuildDropped:     `Build {{.Name}} dropped`,
		ReasonBuildFailed:      `Build {{.Name}} failed while {{.From | lower}}{{if .Error}}: {{.Error}}{{end}}`,
	}
	for reason, text := range defaults {
		// defaults are static and known to parse
		_ = e.SetTemplate(reason, text)
	}
}

// Render generates a message for the given event reason and data.
func (e *MessageTemplateEngine) Render(reason EventReason, data EventData) string {
	e.mu.RLock()
	tmpl, exists := e.templates[reason]
	e.mu.RUnlock()

	if !exists {
		return runboatstrings.SingleLine(fmt.Sprintf("Event: %s for %s/%s", reason, data.Namespace, data.Name), maxMessageLen)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return runboatstrings.SingleLine(fmt.Sprintf("%s for %s/%s", reason, data.Namespace, data.Name), maxMessageLen)
	}
	return runboatstrings.SingleLine(buf.String(), maxMessageLen)
}

// SetTemplate replaces the message template for a specific event reason.
func (e *MessageTemplateEngine) SetTemplate(reason EventReason, text string) error {
	tmpl, err := template.New(string(reason)).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse template for %s: %w", reason, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[reason] = tmpl
	e.sources[reason] = text
	return nil
}

// GetTemplate returns the template for a specific event reason.
func (e *MessageTemplateEngine) GetTemplate(reason EventReason) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	text, exists := e.sources[reason]
	return text, exists
}
