package models

import (
	"regexp"
	"sort"
	"strings"
	"time"

	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
)

// Template is a reusable document body with {{variable}} placeholders.
type Template struct {
	ID        id.TemplateID `json:"id"`
	Name      string        `json:"name"`
	Body      string        `json:"body"`
	CreatedAt time.Time     `json:"created_at"`
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

func NewTemplate(templateID id.TemplateID, name, body string, now time.Time) (*Template, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "template name cannot be empty")
	}
	if body == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "template body cannot be empty")
	}
	return &Template{
		ID:        templateID,
		Name:      name,
		Body:      body,
		CreatedAt: now,
	}, nil
}

// Variables returns the distinct placeholder names in the body, sorted.
func (t *Template) Variables() []string {
	seen := make(map[string]struct{})
	for _, match := range placeholderPattern.FindAllStringSubmatch(t.Body, -1) {
		seen[match[1]] = struct{}{}
	}
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// Render substitutes placeholders with the given values. Every placeholder
// must be covered; missing variables fail validation listing each one.
func (t *Template) Render(vars map[string]string) (string, error) {
	var missing []string
	for _, name := range t.Variables() {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", dErrors.New(dErrors.CodeValidation, "missing template variables: "+strings.Join(missing, ", "))
	}

	rendered := placeholderPattern.ReplaceAllStringFunc(t.Body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return vars[name]
	})
	return rendered, nil
}
