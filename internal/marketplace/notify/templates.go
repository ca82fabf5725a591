package notify

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"github.com/gartstein/internhub/internal/marketplace/models"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultCatalogue []byte

// Kind names one entry of the template catalogue.
type Kind string

const (
	KindWelcome             Kind = "welcome"
	KindApplicationReceived Kind = "application_received"
	KindStatusUpdate        Kind = "status_update"
)

type WelcomeData struct {
	Name string
}

type ApplicationReceivedData struct {
	CompanyName    string
	PostingTitle   string
	ApplicantName  string
	ApplicantEmail string
}

type StatusUpdateData struct {
	ApplicantName string
	PostingTitle  string
	Status        models.Status
	Message       string
	InterviewAt   *time.Time
	InterviewLink string
}

type entry struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type compiled struct {
	subject *texttemplate.Template
	body    *template.Template
}

// Templates renders catalogue entries into messages.
type Templates struct {
	entries map[Kind]compiled
}

var funcs = map[string]any{
	"datetime": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.UTC().Format("Mon, 02 Jan 2006 15:04 MST")
	},
}

// DefaultTemplates parses the embedded catalogue.
func DefaultTemplates() (*Templates, error) {
	return ParseTemplates(defaultCatalogue)
}

// ParseTemplates parses a YAML catalogue of subject/body pairs. Bodies are
// HTML templates and are escaped accordingly.
func ParseTemplates(data []byte) (*Templates, error) {
	var raw map[Kind]entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse template catalogue: %w", err)
	}

	t := &Templates{entries: make(map[Kind]compiled, len(raw))}
	for kind, e := range raw {
		subject, err := texttemplate.New(string(kind)).Funcs(funcs).Parse(e.Subject)
		if err != nil {
			return nil, fmt.Errorf("template %s: subject: %w", kind, err)
		}
		body, err := template.New(string(kind)).Funcs(funcs).Parse(e.Body)
		if err != nil {
			return nil, fmt.Errorf("template %s: body: %w", kind, err)
		}
		t.entries[kind] = compiled{subject: subject, body: body}
	}
	return t, nil
}

// Render builds the message of kind addressed to to.
func (t *Templates) Render(kind Kind, to string, data any) (models.Message, error) {
	c, ok := t.entries[kind]
	if !ok {
		return models.Message{}, fmt.Errorf("unknown template %q", kind)
	}

	var subject, body bytes.Buffer
	if err := c.subject.Execute(&subject, data); err != nil {
		return models.Message{}, fmt.Errorf("template %s: subject: %w", kind, err)
	}
	if err := c.body.Execute(&body, data); err != nil {
		return models.Message{}, fmt.Errorf("template %s: body: %w", kind, err)
	}
	return models.Message{To: to, Subject: subject.String(), HTML: body.String()}, nil
}
