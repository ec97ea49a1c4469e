package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smallbiznis/nexus360/internal/ai/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateRequest is the subset of the generateContent body the client must send.
type generateRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MimeType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

func geminiServer(t *testing.T, status int, text string, seen ...*generateRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/test-model:generateContent"), r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("x-goog-api-key"))

		var body generateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body.Contents)
		assert.Equal(t, "application/json", body.GenerationConfig.ResponseMimeType)
		for _, dst := range seen {
			*dst = body
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
			},
		})
	}))
}

func newTestGemini(t *testing.T, url string) *Gemini {
	t.Helper()
	g, err := NewGemini(context.Background(), GeminiConfig{BaseURL: url, Model: "test-model", APIKey: "key-123"})
	require.NoError(t, err)
	return g
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, CleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `[1]`, CleanJSON("  [1] "))
	assert.Equal(t, `[]`, CleanJSON("```\n[]\n```"))
}

func TestGeminiSummarize(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, "```json\n{\"summary\":\"Good\",\"strengths\":[\"a\"],\"improvements\":[\"b\"]}\n```")
	defer srv.Close()

	out, err := newTestGemini(t, srv.URL).Summarize(context.Background(), domain.SummaryRequest{SubjectName: "B"})
	require.NoError(t, err)
	assert.Equal(t, "Good", out.Summary)
	assert.Equal(t, []string{"a"}, out.Strengths)
}

func TestGeminiParseOrgChartWithFile(t *testing.T) {
	var sent generateRequest
	srv := geminiServer(t, http.StatusOK, `{"newUsers":[{"id":"n1","name":"Nia"}],"assignments":[{"reviewerId":"n1","subjectId":"n1","relationship":"SELF"}]}`, &sent)
	defer srv.Close()

	out, err := newTestGemini(t, srv.URL).ParseOrgChart(context.Background(), domain.OrgChartRequest{
		Text: "Nia leads design",
		File: &domain.File{MimeType: "image/png", Data: []byte{1, 2, 3}},
	})
	require.NoError(t, err)
	require.Len(t, out.NewUsers, 1)
	assert.Equal(t, "Nia", out.NewUsers[0].Name)
	require.Len(t, out.Assignments, 1)
	assert.Equal(t, "SELF", out.Assignments[0].Relationship)

	require.Len(t, sent.Contents, 1)
	assert.Equal(t, "user", sent.Contents[0].Role)
	require.Len(t, sent.Contents[0].Parts, 2)
	assert.Contains(t, sent.Contents[0].Parts[0].Text, "Nia leads design")
	require.NotNil(t, sent.Contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/png", sent.Contents[0].Parts[1].InlineData.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), sent.Contents[0].Parts[1].InlineData.Data)
}

func TestGeminiErrors(t *testing.T) {
	failing := geminiServer(t, http.StatusInternalServerError, "")
	defer failing.Close()
	_, err := newTestGemini(t, failing.URL).GenerateQuestionnaire(context.Background())
	assert.ErrorIs(t, err, domain.ErrRequestFailed)

	malformed := geminiServer(t, http.StatusOK, "not json")
	defer malformed.Close()
	_, err = newTestGemini(t, malformed.URL).GenerateQuestionnaire(context.Background())
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)

	unconfigured, err := NewGemini(context.Background(), GeminiConfig{})
	require.NoError(t, err)
	_, err = unconfigured.GenerateQuestionnaire(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestNoopIsUnavailable(t *testing.T) {
	_, err := Noop{}.Summarize(context.Background(), domain.SummaryRequest{})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
