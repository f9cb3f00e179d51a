package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/retry"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultModel = "gpt-4o-mini"

// OpenAIClient classifies through an OpenAI-compatible chat completions
// endpoint. The user's stored key wins over the configured one.
type OpenAIClient struct {
	cfg        types.ClassificationConfig
	keys       repository.APIKeyRepository
	retry      retry.Policy
	httpClient *http.Client
}

func NewOpenAIClient(cfg types.ClassificationConfig, keys repository.APIKeyRepository, policy retry.Policy) *OpenAIClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	return &OpenAIClient{
		cfg:        cfg,
		keys:       keys,
		retry:      policy,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *OpenAIClient) Name() string {
	return types.ClassifierProviderOpenAI
}

func (c *OpenAIClient) Classify(ctx context.Context, req Request) (*Decision, error) {
	apiKey, err := c.apiKey(ctx, req.UserId)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	}
	if c.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	system, user := BuildPrompt(req, c.cfg.MaxBodyChars)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
	}

	var content string
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		resp, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			return classifyError(ctx, err)
		}
		if len(resp.Choices) == 0 {
			return &types.ProviderError{Provider: c.Name(), Op: "chat.completions", Kind: types.KindTransient, Message: "empty choices"}
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ParseDecision(content), nil
}

func (c *OpenAIClient) apiKey(ctx context.Context, userId string) (string, error) {
	if c.keys != nil && userId != "" {
		key, err := c.keys.GetAPIKey(ctx, userId, types.ClassifierProviderOpenAI)
		if err != nil {
			return "", err
		}
		if key != nil && key.Key != "" {
			return key.Key, nil
		}
	}
	if c.cfg.APIKey != "" {
		return c.cfg.APIKey, nil
	}
	return "", &types.ProviderError{
		Provider: types.ClassifierProviderOpenAI,
		Op:       "chat.completions",
		Kind:     types.KindPermanent,
		Message:  "no api key configured",
	}
}

func classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := types.KindPermanent
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			kind = types.KindTransient
		}
		return &types.ProviderError{
			Provider:   types.ClassifierProviderOpenAI,
			Op:         "chat.completions",
			Kind:       kind,
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}

	return &types.ProviderError{
		Provider: types.ClassifierProviderOpenAI,
		Op:       "chat.completions",
		Kind:     types.KindTransient,
		Err:      err,
	}
}

// ParseDecision reads a JSON answer out of content. Models sometimes wrap it
// in prose or code fences; a reply with no JSON object is taken as a bare
// category name.
func ParseDecision(content string) *Decision {
	content = strings.TrimSpace(content)

	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		var answer struct {
			Category   string          `json:"category"`
			Confidence json.RawMessage `json:"confidence"`
			Reasoning  string          `json:"reasoning"`
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &answer); err == nil && answer.Category != "" {
			return &Decision{
				Category:   answer.Category,
				Confidence: parseConfidence(answer.Confidence),
				Reasoning:  answer.Reasoning,
			}
		}
	}

	return &Decision{Category: strings.Trim(content, "`\"' \n"), Confidence: 0.5}
}

func parseConfidence(raw json.RawMessage) float64 {
	s := strings.Trim(string(raw), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
