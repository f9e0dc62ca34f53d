package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wavechat/wavechat-backend/internal/config"
	"github.com/wavechat/wavechat-backend/internal/domain"
	pkglogger "github.com/wavechat/wavechat-backend/pkg/logger"
)

// Verdict is the three-way moderation outcome
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictFlag  Verdict = "flag"
	VerdictBlock Verdict = "block"
)

// ModerationResult is what the gate returns for a piece of text.
// Degraded is set when the scorer was unreachable and the gate failed open.
type ModerationResult struct {
	Verdict  Verdict
	Scores   map[string]float64
	Reason   string
	Degraded bool
}

// Moderator classifies message text and summarizes conversations
type Moderator interface {
	Classify(ctx context.Context, text string) ModerationResult
	Summarize(ctx context.Context, messages []*domain.Message) (string, error)
}

// ModerationService calls an OpenAI-compatible moderation/completions endpoint
type ModerationService struct {
	cfg        config.ModerationConfig
	httpClient *http.Client
}

// NewModerationService creates the moderation gate
func NewModerationService(cfg config.ModerationConfig) *ModerationService {
	return &ModerationService{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type moderationRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged        bool               `json:"flagged"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// Classify scores the text and maps category scores onto {allow, flag, block}.
// Scorer failure never drops content: with fail_open (the default) the message
// is allowed through with Degraded set; with fail_open disabled the verdict is
// block with an explicit reason.
func (s *ModerationService) Classify(ctx context.Context, text string) ModerationResult {
	if s.cfg.BaseURL == "" {
		return s.degradedResult("moderation disabled")
	}

	scores, err := s.score(ctx, text)
	if err != nil {
		pkglogger.GetLogger().Warn().Err(err).Msg("moderation scorer unreachable")
		return s.degradedResult("moderation unavailable")
	}

	var topCategory string
	var topScore float64
	for category, score := range scores {
		if score > topScore {
			topCategory, topScore = category, score
		}
	}

	switch {
	case topScore >= s.cfg.BlockThreshold:
		return ModerationResult{
			Verdict: VerdictBlock,
			Scores:  scores,
			Reason:  fmt.Sprintf("content blocked by moderation (%s)", topCategory),
		}
	case topScore >= s.cfg.FlagThreshold:
		return ModerationResult{Verdict: VerdictFlag, Scores: scores}
	default:
		return ModerationResult{Verdict: VerdictAllow, Scores: scores}
	}
}

func (s *ModerationService) degradedResult(reason string) ModerationResult {
	if s.cfg.FailOpen == nil || *s.cfg.FailOpen {
		return ModerationResult{
			Verdict:  VerdictAllow,
			Scores:   map[string]float64{},
			Degraded: true,
		}
	}
	return ModerationResult{
		Verdict:  VerdictBlock,
		Scores:   map[string]float64{},
		Reason:   reason,
		Degraded: true,
	}
}

func (s *ModerationService) score(ctx context.Context, text string) (map[string]float64, error) {
	payload, err := json.Marshal(moderationRequest{Model: s.cfg.Model, Input: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.cfg.BaseURL, "/")+"/moderations", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("scorer returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Results) == 0 {
		return nil, fmt.Errorf("scorer returned no results")
	}
	return parsed.Results[0].CategoryScores, nil
}

type chatCompletionRequest struct {
	Model    string                  `json:"model"`
	Messages []chatCompletionMessage `json:"messages"`
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
}

const summarySystemPrompt = "You summarize chat conversations. Reply with a short, neutral summary (2-3 sentences) of the messages you are given. Do not invent details."

// Summarize asks the provider for a short natural-language summary of the
// given messages. Unlike Classify this fails closed: the caller gets an error
// and no summary.
func (s *ModerationService) Summarize(ctx context.Context, messages []*domain.Message) (string, error) {
	if s.cfg.BaseURL == "" {
		return "", fmt.Errorf("summarization disabled")
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("nothing to summarize")
	}

	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "[user %d] %s\n", m.SenderID, m.Content)
	}

	model := s.cfg.SummaryModel
	if model == "" {
		model = s.cfg.Model
	}
	payload, err := json.Marshal(chatCompletionRequest{
		Model: model,
		Messages: []chatCompletionMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: sb.String()},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("summarizer returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("summarizer returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
