package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/smallbiznis/nexus360/internal/ai/domain"
	"google.golang.org/genai"
)

var codeFence = regexp.MustCompile("```(?:json)?")

type GeminiConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Gemini asks the Gemini API for JSON answers. BaseURL may point at a proxy.
type Gemini struct {
	model  string
	client *genai.Client
}

// NewGemini returns a client that reports ErrUnavailable on every call when
// the model or API key is missing.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	model := strings.TrimSpace(cfg.Model)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if model == "" || apiKey == "" {
		return &Gemini{}, nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = strings.TrimRight(baseURL, "/") + "/"
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{model: model, client: client}, nil
}

func (g *Gemini) Summarize(ctx context.Context, req domain.SummaryRequest) (domain.Summary, error) {
	categories, _ := json.Marshal(req.Categories)
	var feedback strings.Builder
	for i, review := range req.Reviews {
		if i > 0 {
			feedback.WriteString("\n---\n")
		}
		fmt.Fprintf(&feedback, "Relationship: %s\nStrengths: %s\nImprovements: %s\n",
			review.Relationship, review.Strengths, review.Improvements)
	}

	prompt := fmt.Sprintf(`You are a senior HR performance specialist.
Analyse the 360-degree review results of %q.

Category scores (1-5, selfScore is the self assessment):
%s

Raw feedback:
%s

Respond with a JSON object:
{"summary": "...", "strengths": ["..."], "improvements": ["..."]}
summary is a professional paragraph of about 100 words that highlights any gap
between self assessment and the assessment of others. strengths lists 3 key
strengths, improvements lists 3 concrete suggestions.`, req.SubjectName, categories, feedback.String())

	var out domain.Summary
	if err := g.generate(ctx, prompt, nil, &out); err != nil {
		return domain.Summary{}, err
	}
	if strings.TrimSpace(out.Summary) == "" {
		return domain.Summary{}, domain.ErrMalformedResponse
	}
	return out, nil
}

func (g *Gemini) SuggestRelationships(ctx context.Context, users []domain.Person, cycleID string) ([]domain.ProposedAssignment, error) {
	people, _ := json.MarshalIndent(users, "", "  ")
	prompt := fmt.Sprintf(`Build a 360-degree review plan for cycle %s from this employee list:
%s

Rules:
1. SELF: everyone reviews themselves.
2. MANAGER: the manager (managerId) reviews each direct report.
3. DIRECT_REPORT: each report reviews their manager.
4. PEER: colleagues in the same department review each other, at least 2 peers per person.

Respond with a JSON array of {"reviewerId": "...", "subjectId": "...", "relationship": "SELF|MANAGER|DIRECT_REPORT|PEER"}.`, cycleID, people)

	var out []domain.ProposedAssignment
	if err := g.generate(ctx, prompt, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gemini) ParseOrgChart(ctx context.Context, req domain.OrgChartRequest) (domain.OrgChart, error) {
	known, _ := json.Marshal(req.ExistingUsers)
	prompt := fmt.Sprintf(`You are an HR assistant. Parse the provided org chart or roster to identify all
employees and generate 360-degree review plans.

Current system users (reuse their ids when a name matches): %s

Additional content: %q

Tasks:
1. Identify people. Use existing ids when found, otherwise create new entries
   with a temporary id and infer role and manager.
2. Assignments: SELF (everyone), MANAGER (manager->report),
   DIRECT_REPORT (report->manager), PEER (same team).

Respond strictly with JSON:
{"newUsers": [{"id": "...", "name": "...", "role": "MANAGER|EMPLOYEE", "department": "...", "managerId": "..."}],
 "assignments": [{"reviewerId": "...", "subjectId": "...", "relationship": "SELF|MANAGER|DIRECT_REPORT|PEER"}]}`, known, req.Text)

	var out domain.OrgChart
	if err := g.generate(ctx, prompt, req.File, &out); err != nil {
		return domain.OrgChart{}, err
	}
	return out, nil
}

func (g *Gemini) ParseUserList(ctx context.Context, req domain.UserListRequest) ([]domain.ProposedUser, error) {
	prompt := fmt.Sprintf(`Parse the following file or text to extract a list of employees.

Input text: %q

Respond with a JSON array:
[{"name": "...", "email": "...", "role": "ADMIN|MANAGER|EMPLOYEE", "department": "..."}]
Default role to EMPLOYEE.`, req.Text)

	var out []domain.ProposedUser
	if err := g.generate(ctx, prompt, req.File, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gemini) GenerateQuestionnaire(ctx context.Context) ([]domain.QuestionDraft, error) {
	prompt := `Design a 360-degree review questionnaire based on a leadership competency model.

Rules:
1. Use declarative statements.
2. Describe behaviour in the third person without pronouns.
3. Each question covers exactly one behaviour.
4. Every statement is phrased positively.
5. Behaviour must be specific, observable and measurable.

Cover these categories: Integrity, Learning & Innovation, Strategic Thinking,
Organizational Optimization, Talent Development.

Produce 10-15 questions as a JSON array of {"text": "...", "category": "..."}.`

	var out []domain.QuestionDraft
	if err := g.generate(ctx, prompt, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gemini) generate(ctx context.Context, prompt string, file *domain.File, out any) error {
	if g.client == nil {
		return domain.ErrUnavailable
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if file != nil && len(file.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(file.Data, file.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%w: status %d: %s", domain.ErrRequestFailed, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("%w: %v", domain.ErrRequestFailed, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return domain.ErrMalformedResponse
	}
	if err := json.Unmarshal([]byte(CleanJSON(text)), out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

// CleanJSON strips markdown code fences that models wrap around JSON.
func CleanJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.Contains(cleaned, "```") {
		cleaned = codeFence.ReplaceAllString(cleaned, "")
		cleaned = strings.ReplaceAll(cleaned, "```", "")
	}
	return strings.TrimSpace(cleaned)
}
