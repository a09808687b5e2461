package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	for _, key := range []string{"title-variants", "structure-variants"} {
		prompt, err := Get(IdeationFile, key)
		require.NoError(t, err)
		assert.Contains(t, prompt, "Return ONLY a JSON array")
		assert.Contains(t, prompt, "{{.Learnings}}")
	}
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get(IdeationFile, "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMustGet_Panics(t *testing.T) {
	ClearCache()

	assert.Panics(t, func() {
		MustGet("nonexistent.json", "some-key")
	})
}

func TestFormat(t *testing.T) {
	result, err := Format("Improve {{.URL}} ({{.Count}} ideas)", map[string]string{
		"URL":   "https://example.com/a/",
		"Count": "5",
	})
	require.NoError(t, err)
	assert.Equal(t, "Improve https://example.com/a/ (5 ideas)", result)
}

func TestFormat_MissingPlaceholder(t *testing.T) {
	_, err := Format("{{.URL}} {{.Current}} {{.Count}}", map[string]string{"URL": "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{{.Count}}, {{.Current}}")
}

func TestFormat_TitlePromptFillsCompletely(t *testing.T) {
	template := MustGet(IdeationFile, "title-variants")
	_, err := Format(template, map[string]string{
		"URL": "u", "Current": "c", "Position": "7.0", "Impressions": "5000",
		"ActualCTR": "1.00%", "ExpectedCTR": "3.00%", "Learnings": "none", "Count": "5",
	})
	assert.NoError(t, err)
}
