package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// generationBody covers every response shape ExtractText understands.
type generationBody struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		InputTokens      int `json:"input_tokens"`
		OutputTokens     int `json:"output_tokens"`
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ExtractText pulls the reply text out of a generation API body. Shapes are
// tried in order and the first non-empty trimmed text wins:
//
//  1. flat "output_text"
//  2. "output[].content[].text", all parts joined by a single space
//  3. legacy "choices[0].message.content"
func ExtractText(body []byte) (string, error) {
	var gb generationBody
	if err := json.Unmarshal(body, &gb); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	text, ok := gb.text()
	if !ok {
		return "", ErrNoText
	}
	return text, nil
}

func (gb *generationBody) text() (string, bool) {
	if t := strings.TrimSpace(gb.OutputText); t != "" {
		return t, true
	}

	var parts []string
	for _, item := range gb.Output {
		for _, c := range item.Content {
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
	}
	if t := strings.TrimSpace(strings.Join(parts, " ")); t != "" {
		return t, true
	}

	if len(gb.Choices) > 0 {
		if t := strings.TrimSpace(gb.Choices[0].Message.Content); t != "" {
			return t, true
		}
	}
	return "", false
}
