package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"portfolio-tracker/internal/models"
)

type aiCache interface {
	Find(ctx context.Context, queryHash string) (*models.AIResponse, error)
	Upsert(ctx context.Context, queryHash, response string) error
}

// AIService produces human-readable commentary through the Gemini API.
// The LLM is an opaque, possibly slow or failing collaborator: every public
// method degrades to a deterministic template instead of returning an
// error, so alert firing never depends on its availability. Responses are
// cached for the configured TTL, keyed by a hash of the prompt.
type AIService struct {
	client   *genai.Client
	model    string
	cache    aiCache
	cacheTTL time.Duration
	now      func() time.Time
}

// NewAIService creates the service. With an empty API key the client stays
// nil and every call returns the template fallback.
func NewAIService(ctx context.Context, apiKey, model string, cache aiCache, cacheTTL time.Duration) *AIService {
	s := &AIService{model: model, cache: cache, cacheTTL: cacheTTL, now: time.Now}
	if apiKey == "" {
		log.Warn("⚠️ GEMINI_API_KEY not set, AI commentary will use templates only")
		return s
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		log.Errorf("❌ Failed to initialize Gemini client, falling back to templates: %v", err)
		return s
	}
	s.client = client
	return s
}

// Commentary returns a short paragraph about a triggered alert.
func (s *AIService) Commentary(ctx context.Context, alert models.Alert, snap models.QuoteSnapshot, holdings []models.Holding) string {
	var position string
	for _, h := range holdings {
		if h.Ticker == alert.Ticker {
			position = fmt.Sprintf(" The user holds %v units at an average cost of %.2f.", h.Quantity, h.AverageCost)
			break
		}
	}

	prompt := fmt.Sprintf(
		"A stock alert has triggered. %s (%s) trades at %.2f, %+.2f%% today, volume %d, RSI %.1f. "+
			"The alert criterion is %q with threshold %.2f.%s "+
			"Write two or three sentences of neutral, factual commentary for the alert email. "+
			"No investment advice.",
		snap.Name, snap.Ticker, snap.Price, snap.DailyChangePct, snap.Volume, snap.RSI,
		alert.Criterion, alert.Threshold, position)

	return s.generate(ctx, prompt, s.alertTemplate(alert, snap))
}

// Insight returns general commentary about a ticker for the dashboard.
func (s *AIService) Insight(ctx context.Context, snap models.QuoteSnapshot) string {
	prompt := fmt.Sprintf(
		"Summarize the current state of %s (%s) for a portfolio dashboard: price %.2f, "+
			"%+.2f%% today, volume %d, RSI %.1f. Two to three factual sentences, no investment advice.",
		snap.Name, snap.Ticker, snap.Price, snap.DailyChangePct, snap.Volume, snap.RSI)

	fallback := fmt.Sprintf("%s (%s) is trading at %.2f, %+.2f%% on the day.",
		snap.Name, snap.Ticker, snap.Price, snap.DailyChangePct)
	return s.generate(ctx, prompt, fallback)
}

func (s *AIService) alertTemplate(alert models.Alert, snap models.QuoteSnapshot) string {
	return fmt.Sprintf("%s (%s) is trading at %.2f (%+.2f%% today). Your %s alert with threshold %.2f has triggered.",
		snap.Name, snap.Ticker, snap.Price, snap.DailyChangePct, alert.Criterion, alert.Threshold)
}

// generate serves from cache when possible, otherwise asks the model.
// Any failure on the way returns the fallback.
func (s *AIService) generate(ctx context.Context, prompt, fallback string) string {
	hash := queryHash(prompt, s.model)

	if s.cache != nil {
		if cached, err := s.cache.Find(ctx, hash); err == nil &&
			s.now().Sub(cached.CachedAt) < s.cacheTTL {
			return cached.Response
		}
	}

	if s.client == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), nil)
	if err != nil {
		log.Warnf("⚠️ Gemini request failed, using template: %v", err)
		return fallback
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		log.Warn("⚠️ Gemini returned an empty response, using template")
		return fallback
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return fallback
	}

	if s.cache != nil {
		if err := s.cache.Upsert(ctx, hash, text); err != nil {
			log.Warnf("⚠️ Failed to cache AI response: %v", err)
		}
	}
	return text
}

func queryHash(prompt, model string) string {
	payload, _ := json.Marshal(map[string]string{"prompt": prompt, "model": model})
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}
