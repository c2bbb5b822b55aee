package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to a local llama-server. Summarization is optional; sync
// proceeds without it when no server is configured or reachable.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxTokens   int
	temperature float64
}

func NewClient(baseURL string, maxTokens int, temperature float64) *Client {
	if maxTokens <= 0 {
		maxTokens = 3000
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 180 * time.Second},
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Healthy probes the server's /health endpoint with a short timeout.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Summarize converts a rendered thread into a markdown note.
func (c *Client) Summarize(ctx context.Context, threadText string) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"prompt":      prompt(threadText),
		"n_predict":   c.maxTokens,
		"temperature": c.temperature,
		// Stop on end-of-sequence only; "---" would cut markdown tables.
		"stop": []string{"</s>"},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llama-server status %d", resp.StatusCode)
	}
	var raw struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	return CleanOutput(raw.Content), nil
}

func prompt(threadText string) string {
	return `You are converting a Twitter thread into a reference note.

Output ONLY the markdown content with:
- A clear H1 title
- A brief summary paragraph
- H2/H3 sections
- Bullet points and checklists
- Code examples if relevant

DO NOT include:
- YAML frontmatter (---)
- Explanations of what you're doing

Thread:
` + threadText + `

Markdown content:`
}

// CleanOutput strips reasoning-model think blocks and stray YAML frontmatter
// from generated markdown.
func CleanOutput(out string) string {
	out = strings.TrimSpace(out)

	if strings.Contains(out, "</think>") {
		parts := strings.Split(out, "</think>")
		out = strings.TrimSpace(parts[len(parts)-1])
	}
	out = strings.ReplaceAll(out, "<think>", "")
	out = strings.TrimSpace(strings.ReplaceAll(out, "</think>", ""))

	if strings.HasPrefix(out, "---") {
		parts := strings.SplitN(out, "---", 3)
		if len(parts) == 3 {
			out = strings.TrimSpace(parts[2])
		}
	}
	return out
}
