package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/datasage-io/datasage/internal/dataset"
)

const (
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
	defaultGroqModel   = "llama3-70b-8192"
	defaultGroqTimeout = 30 * time.Second
)

// GroqClient calls an OpenAI-compatible chat-completions endpoint to turn a
// natural-language request into SQL. Every call is bounded by the configured
// timeout; callers treat any error as a signal to fall through to the rules
// path.
type GroqClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewGroqClient creates a client with the given API key. An empty key yields
// a client whose calls always fail with ErrNoCredential.
func NewGroqClient(apiKey string) *GroqClient {
	return &GroqClient{
		apiKey:  apiKey,
		baseURL: defaultGroqBaseURL,
		model:   defaultGroqModel,
		httpClient: &http.Client{
			Timeout: defaultGroqTimeout,
		},
	}
}

// NewGroqClientWithBaseURL creates a client pointing at a custom base URL
// (for testing).
func NewGroqClientWithBaseURL(apiKey, baseURL string) *GroqClient {
	c := NewGroqClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// SetTimeout overrides the per-call timeout.
func (c *GroqClient) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// SetModel overrides the model name sent with each request.
func (c *GroqClient) SetModel(model string) {
	if model != "" {
		c.model = model
	}
}

// Configured reports whether a credential is available.
func (c *GroqClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

// ErrNoCredential is returned when no API key is configured.
var ErrNoCredential = fmt.Errorf("no API key configured")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Translate asks the model for a SQL translation of the request given the
// table schema. The response content is stripped of fenced-code markup and
// returned verbatim.
func (c *GroqClient) Translate(ctx context.Context, question string, table string, schema []dataset.Column) (string, error) {
	if !c.Configured() {
		return "", ErrNoCredential
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(table, schema)},
			{Role: "user", Content: "Convert this natural language query to SQL: " + question},
		},
		Temperature: 0.1,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translation: unexpected status %d", resp.StatusCode)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding translation response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("translation: empty choices")
	}

	sql := stripCodeFence(result.Choices[0].Message.Content)
	if sql == "" {
		return "", fmt.Errorf("translation: empty query text")
	}
	return sql, nil
}

// systemPrompt embeds the table name and column list the model must target.
func systemPrompt(table string, schema []dataset.Column) string {
	var b strings.Builder
	b.WriteString("You are an expert SQL query writer. Given a natural language query and a database schema, ")
	b.WriteString("translate the query into valid SQLite SQL. Only return the SQL query, nothing else.\n\n")
	b.WriteString("Schema Information:\nTable name: ")
	b.WriteString(table)
	b.WriteString("\nColumns:\n")
	for _, col := range schema {
		fmt.Fprintf(&b, "- %s (%s)\n", col.Name, col.Type.SQLType())
	}
	return b.String()
}

// stripCodeFence removes surrounding ``` or ```sql markup, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
