// Package completion wraps the hosted chat-completion API behind the small
// surface the dispatcher needs: history-aware replies for conversations and
// one-shot generations for reminders.
package completion

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// FallbackReply is sent when the completion call fails for any reason.
const FallbackReply = "Oops! 😅 I'm having a quick glitch. Mind asking about our AI course again? I'm here to help! 🚀"

const defaultSystemPrompt = "You are an AI assistant and your name is Dias for a programming course. " +
	"Provide helpful and engaging responses. Keep replies concise and appropriate for Instagram."

const requestTimeout = 30 * time.Second

var garnishEmojis = []string{"👋", "😊", "💡", "🚀", "💻", "📚", "🌟", "🔥", "💪", "🎓"}

type Client struct {
	api          *openai.Client
	model        string
	maxTokens    int
	temperature  float32
	systemPrompt string
	history      *historyStore
	logger       *zap.Logger
}

// NewClient builds a completion client. promptFile is optional; when the
// file is missing the built-in consultant prompt is used.
func NewClient(apiKey, baseURL, model string, maxTokens int, temperature float64, promptFile string, logger *zap.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	prompt := defaultSystemPrompt
	if promptFile != "" {
		if data, err := os.ReadFile(promptFile); err == nil {
			prompt = strings.TrimSpace(string(data))
		} else {
			logger.Warn("Prompt file not readable, using built-in prompt",
				zap.String("path", promptFile),
				zap.Error(err))
		}
	}

	return &Client{
		api:          openai.NewClientWithConfig(cfg),
		model:        model,
		maxTokens:    maxTokens,
		temperature:  float32(temperature),
		systemPrompt: prompt,
		history:      newHistoryStore(),
		logger:       logger,
	}
}

// Reply answers input using the user's recent conversation. Failures are
// absorbed: the caller always gets text to send, at worst FallbackReply.
func (c *Client) Reply(ctx context.Context, userID, input string) string {
	text, err := c.complete(ctx, c.history.get(userID), input, c.systemPrompt)
	if err != nil {
		c.logger.Error("Completion request failed",
			zap.Error(err),
			zap.String("user_id", userID))
		return FallbackReply
	}

	c.history.add(userID, openai.ChatMessageRoleUser, input)
	c.history.add(userID, openai.ChatMessageRoleAssistant, text)
	return text
}

// Generate runs a one-shot completion with a caller-supplied system prompt
// and no history. Used for reminder copy; the error is surfaced so the
// caller can substitute its own fallback.
func (c *Client) Generate(ctx context.Context, userID, input, system string) (string, error) {
	return c.complete(ctx, nil, input, system)
}

// ClearHistory drops the stored conversation for a user.
func (c *Client) ClearHistory(userID string) {
	c.history.clear(userID)
}

func (c *Client) complete(ctx context.Context, prior []openai.ChatCompletionMessage, input, system string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(prior)+1)
	messages = append(messages, prior...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: input,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: system + languageHint(input),
		}}, messages...),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty choices")
	}

	return garnish(strings.TrimSpace(resp.Choices[0].Message.Content)), nil
}

// languageHint nudges the model to answer in the user's language. The
// audience is mostly Russian/Kazakh speaking; everything else gets English.
func languageHint(input string) string {
	info := whatlanggo.Detect(input)
	switch info.Lang {
	case whatlanggo.Rus:
		return " Respond in Russian."
	case whatlanggo.CodeToLang("kaz"):
		return " Respond in Kazakh."
	default:
		return " Respond in English."
	}
}

// garnish appends an emoji when the reply has none, matching the brand's
// Instagram voice.
func garnish(text string) string {
	for _, e := range garnishEmojis {
		if strings.Contains(text, e) {
			return text
		}
	}
	return text + " " + garnishEmojis[rand.Intn(len(garnishEmojis))]
}
