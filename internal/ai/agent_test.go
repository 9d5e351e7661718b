package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name     string   `mapstructure:"name"`
	Score    float64  `mapstructure:"score"`
	Selected bool     `mapstructure:"selected"`
	Areas    []string `mapstructure:"areas"`
	Count    int      `mapstructure:"count"`
}

func TestDecodeJSONHandlesFencesAndLooseTypes(t *testing.T) {
	raw := "Here you go:\n```json\n{\"name\": \"Jane\", \"score\": \"82.5\", \"selected\": \"yes\", \"areas\": [\"NLP\"], \"count\": null}\n```"

	var out sample
	require.NoError(t, DecodeJSON(raw, &out))

	assert.Equal(t, "Jane", out.Name)
	assert.Equal(t, 82.5, out.Score)
	assert.True(t, out.Selected)
	assert.Equal(t, []string{"NLP"}, out.Areas)
	assert.Zero(t, out.Count)
}

func TestDecodeJSONWithoutObject(t *testing.T) {
	var out sample
	err := DecodeJSON("I could not find anything.", &out)
	assert.True(t, errors.Is(err, ErrNoJSON))

	err = DecodeJSON("{not json}", &out)
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ExtractJSON("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":{"b":2}}`, ExtractJSON(`prefix {"a":{"b":2}} suffix`))
}

func TestCoercion(t *testing.T) {
	assert.True(t, CoerceBool("TRUE"))
	assert.False(t, CoerceBool("no"))
	assert.True(t, CoerceBool(1.0))
}

func TestRenderTemplate(t *testing.T) {
	got := RenderTemplate("Hello {{NAME}}, {{NAME}} from {{PLACE}}", map[string]string{"NAME": "Jane", "PLACE": "MIT"})
	assert.Equal(t, "Hello Jane, Jane from MIT", got)
}
