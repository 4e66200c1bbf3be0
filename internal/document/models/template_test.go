package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
)

func TestTemplateVariables(t *testing.T) {
	tmpl, err := NewTemplate(id.NewTemplateID(), "poa",
		"I, {{ client_name }}, appoint {{agent_name}} on {{date}}. Signed {{client_name}}.", testNow)
	require.NoError(t, err)

	assert.Equal(t, []string{"agent_name", "client_name", "date"}, tmpl.Variables(),
		"variables are distinct and sorted")
}

func TestTemplateRender(t *testing.T) {
	tmpl, err := NewTemplate(id.NewTemplateID(), "poa",
		"I, {{client_name}}, appoint {{agent_name}}.", testNow)
	require.NoError(t, err)

	t.Run("substitutes every placeholder", func(t *testing.T) {
		out, err := tmpl.Render(map[string]string{
			"client_name": "Ada Reyes",
			"agent_name":  "Niko Petrov",
		})
		require.NoError(t, err)
		assert.Equal(t, "I, Ada Reyes, appoint Niko Petrov.", out)
	})

	t.Run("lists every missing variable", func(t *testing.T) {
		_, err := tmpl.Render(map[string]string{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, err.Error(), "agent_name, client_name")
	})

	t.Run("extra variables are ignored", func(t *testing.T) {
		out, err := tmpl.Render(map[string]string{
			"client_name": "Ada",
			"agent_name":  "Niko",
			"unused":      "x",
		})
		require.NoError(t, err)
		assert.NotContains(t, out, "{{")
	})
}

func TestNewTemplate(t *testing.T) {
	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewTemplate(id.NewTemplateID(), "", "body", testNow)
		assert.Error(t, err)
	})
	t.Run("rejects empty body", func(t *testing.T) {
		_, err := NewTemplate(id.NewTemplateID(), "poa", "", testNow)
		assert.Error(t, err)
	})
}
