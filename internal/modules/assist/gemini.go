// README: Gemini-backed parser turning rider messages into ride intents.
package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// PromptContext is injected into every prompt.
type PromptContext struct {
	Now             string
	CurrentLocation string
	Name            string
}

type GeminiParser struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiParser(ctx context.Context, apiKey, modelName string) (*GeminiParser, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)

	return &GeminiParser{client: client, model: model}, nil
}

func (p *GeminiParser) Close() error {
	return p.client.Close()
}

func (p *GeminiParser) Parse(ctx context.Context, message string, pc PromptContext) (*Intent, error) {
	prompt := fmt.Sprintf("%s\n\nRider message: %s", buildPrompt(pc), message)

	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates from Gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return decodeIntent(text.String())
}

func decodeIntent(raw string) (*Intent, error) {
	cleaned := cleanJSONString(raw)
	var in Intent
	if err := json.Unmarshal([]byte(cleaned), &in); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, cleaned)
	}
	return &in, nil
}

func buildPrompt(pc PromptContext) string {
	now := pc.Now
	if now == "" {
		now = "UNKNOWN_TIME"
	}
	loc := pc.CurrentLocation
	if loc == "" {
		loc = "UNKNOWN_LOCATION"
	}
	name := pc.Name
	if name == "" {
		name = "rider"
	}

	return fmt.Sprintf(`Role: You take ride requests for "Twende", a ride-hailing service in Nairobi, Kenya.
Context:
- Current time: %s
- Rider's current location: %s
- Rider's name: %s

RULES:
1. Set "intent" to "booking" only when the destination is a specific place a driver can find.
   Vague places ("town", "the mall") need "intent": "clarification" and a question in "reply".
2. "origin" is where the rider wants to be picked up. Leave it null when the rider means
   their current location or does not say.
3. "payment_method" is "cash" or "mpesa" when the rider says how they will pay, otherwise null.
4. Anything that is not a ride request is "intent": "chat" with a short friendly "reply".
5. "reply" is one short sentence in the rider's language. No markdown.

Output JSON schema:
{
  "intent": "booking" | "clarification" | "chat",
  "origin": "string or null",
  "destination": "string or null",
  "payment_method": "cash" | "mpesa" | null,
  "reply": "string"
}
`, now, loc, name)
}

// cleanJSONString removes markdown code fences if present.
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
