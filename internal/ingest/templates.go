package ingest

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Template names. post.matched renders one template per party.
const (
	tmplMatchOwner   = EventPostMatched + ".owner"
	tmplMatchMatched = EventPostMatched + ".matched"
)

var requiredTemplates = []string{
	EventPostCreated, EventPostExpired, tmplMatchOwner, tmplMatchMatched,
	EventUserRegistered, EventUserVerified,
}

//go:embed templates.yaml
var defaultTemplates []byte

type messageTemplate struct {
	title *template.Template
	body  *template.Template
}

// Templates renders notification titles and bodies by name.
type Templates struct {
	set map[string]messageTemplate
}

// DefaultTemplates returns the built-in copy.
func DefaultTemplates() (*Templates, error) {
	return ParseTemplates(defaultTemplates)
}

// LoadTemplates reads templates from a YAML file, or the built-in copy when path is empty.
func LoadTemplates(path string) (*Templates, error) {
	if path == "" {
		return DefaultTemplates()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrTemplate, err)
	}
	return ParseTemplates(data)
}

// ParseTemplates parses a YAML document mapping template names to
// {title, body} pairs. Every event type must have its templates.
func ParseTemplates(data []byte) (*Templates, error) {
	var src map[string]struct {
		Title string `yaml:"title"`
		Body  string `yaml:"body"`
	}
	if err := yaml.Unmarshal(data, &src); err != nil {
		return nil, errors.Join(ErrTemplate, err)
	}

	t := &Templates{set: make(map[string]messageTemplate, len(src))}
	for name, s := range src {
		title, err := template.New(name + ".title").Option("missingkey=error").Parse(s.Title)
		if err != nil {
			return nil, errors.Join(ErrTemplate, err)
		}
		body, err := template.New(name + ".body").Option("missingkey=error").Parse(s.Body)
		if err != nil {
			return nil, errors.Join(ErrTemplate, err)
		}
		t.set[name] = messageTemplate{title: title, body: body}
	}

	for _, name := range requiredTemplates {
		if _, ok := t.set[name]; !ok {
			return nil, fmt.Errorf("%w: missing template %q", ErrTemplate, name)
		}
	}
	return t, nil
}

// Render executes the named template against data.
func (t *Templates) Render(name string, data any) (title, body string, err error) {
	mt, ok := t.set[name]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown template %q", ErrTemplate, name)
	}

	var buf bytes.Buffer
	if err := mt.title.Execute(&buf, data); err != nil {
		return "", "", errors.Join(ErrTemplate, err)
	}
	title = buf.String()

	buf.Reset()
	if err := mt.body.Execute(&buf, data); err != nil {
		return "", "", errors.Join(ErrTemplate, err)
	}
	return title, buf.String(), nil
}
