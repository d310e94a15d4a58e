package providers

import (
	"encoding/json"
	"testing"

	"github.com/shivam-kaushik/co-investigator/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiBuildURL(t *testing.T) {
	p := &GeminiProvider{}

	url := p.BuildURL("", "gemini-2.0-flash")
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent", url)

	url = p.BuildURL("https://proxy.example.com/", "gemini-2.5-pro")
	assert.Equal(t, "https://proxy.example.com/v1beta/models/gemini-2.5-pro:generateContent", url)
}

func TestGeminiBuildRequestBody(t *testing.T) {
	p := &GeminiProvider{}
	temp := 0.2

	body, err := p.BuildRequestBody("gemini-2.0-flash", []llm.Message{
		{Role: "system", Content: "You are a routing classifier."},
		{Role: "user", Content: "continue"},
		{Role: "assistant", Content: "ok"},
	}, &temp, 256)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))

	contents := req["contents"].([]any)
	require.Len(t, contents, 2, "system message goes to systemInstruction, not contents")

	first := contents[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	second := contents[1].(map[string]any)
	assert.Equal(t, "model", second["role"], "assistant maps to the model role")

	require.NotNil(t, req["systemInstruction"])
	gen := req["generationConfig"].(map[string]any)
	assert.Equal(t, 0.2, gen["temperature"])
	assert.Equal(t, float64(256), gen["maxOutputTokens"])
}

func TestGeminiParseResponse(t *testing.T) {
	p := &GeminiProvider{}

	body := []byte(`{
		"candidates": [{
			"content": {"role": "model", "parts": [{"text": "EXECUTE"}, {"text": "_STEP"}]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 3, "totalTokenCount": 15},
		"modelVersion": "gemini-2.0-flash-001"
	}`)

	resp, err := p.ParseResponse(body, "gemini-2.0-flash")
	require.NoError(t, err)
	assert.Equal(t, "EXECUTE_STEP", resp.Content)
	assert.Equal(t, "gemini-2.0-flash-001", resp.Model)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "STOP", resp.FinishReason)
}

func TestGeminiParseResponseNoCandidates(t *testing.T) {
	p := &GeminiProvider{}

	_, err := p.ParseResponse([]byte(`{"candidates": []}`), "gemini-2.0-flash")
	assert.Error(t, err)
}
