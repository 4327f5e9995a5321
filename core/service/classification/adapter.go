// Package classification turns one inbound suggestion into a business-value score
// using a language model. It never fails: problems become sentinel results.
package classification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"ideabox/core/domain"
	"ideabox/core/port/out"
	"ideabox/pkg/logger"
	"ideabox/pkg/metrics"
	"ideabox/pkg/resilience"
)

const (
	SummaryUnconfigured = "AI scoring unavailable: no API key configured"
	summaryFailedPrefix = "AI scoring failed: "

	maxErrorRunes = 120
	maxBodyRunes  = 4000
)

const systemPrompt = `You assess employee improvement suggestions for a company.
Rate the business value of the suggestion from 0 to 100, where 100 means large, concrete
savings or revenue and 0 means no actionable value.
Also judge how close the sender is to the problem they describe: High when they work with
it daily, Medium when they see it regularly, Low when they describe it from a distance.
Reply with a single JSON object and nothing else:
{"score": <integer 0-100>, "summary": "<one sentence on why>", "category": "<short business area, e.g. IT / Systems>", "proximity": "High|Medium|Low"}`

// Config tunes the adapter.
type Config struct {
	Timeout time.Duration
}

// Adapter scores suggestions. A nil completer means no model is configured.
type Adapter struct {
	completer out.JSONCompleter
	cb        *gobreaker.CircuitBreaker
	timeout   time.Duration
}

func NewAdapter(completer out.JSONCompleter, cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Adapter{
		completer: completer,
		cb: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "classifier",
			FailureThreshold: 5,
			Timeout:          2 * time.Minute,
		}),
		timeout: cfg.Timeout,
	}
}

// Classify returns the model's verdict, or a sentinel when the model is not
// configured or the call fails.
func (a *Adapter) Classify(ctx context.Context, subject, body, sender string) domain.Classification {
	if a.completer == nil {
		metrics.ClassifierResults.WithLabelValues("unconfigured").Inc()
		return Unconfigured()
	}

	result, err := a.classify(ctx, subject, body, sender)
	if err != nil {
		metrics.ClassifierResults.WithLabelValues("failed").Inc()
		logger.WithContext(ctx).WithError(err).WithField("subject", subject).Warn("classification failed, storing degraded record")
		return Failed(err)
	}

	metrics.ClassifierResults.WithLabelValues("ok").Inc()
	return result
}

func (a *Adapter) classify(ctx context.Context, subject, body, sender string) (domain.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.cb.Execute(func() (interface{}, error) {
		return a.completer.CompleteJSON(ctx, systemPrompt, BuildPrompt(subject, body, sender))
	})
	if err != nil {
		if resilience.IsOpen(err) {
			return domain.Classification{}, fmt.Errorf("classifier circuit open: %w", err)
		}
		return domain.Classification{}, err
	}

	return ParseResponse(raw.(string))
}

// BuildPrompt renders the user prompt. Only the masked sender leaves the service.
func BuildPrompt(subject, body, sender string) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) > maxBodyRunes {
		body = string([]rune(body)[:maxBodyRunes])
	}
	if body == "" {
		body = "(no body)"
	}

	var sb strings.Builder
	sb.WriteString("Subject: ")
	sb.WriteString(strings.TrimSpace(subject))
	sb.WriteString("\nSender: ")
	sb.WriteString(domain.MaskAddress(strings.TrimSpace(sender)))
	sb.WriteString("\n\nSuggestion:\n")
	sb.WriteString(body)
	return sb.String()
}

type response struct {
	Score     *float64 `json:"score"`
	Summary   string   `json:"summary"`
	Category  string   `json:"category"`
	Proximity string   `json:"proximity"`
}

// ParseResponse decodes the model's JSON object, tolerating markdown fences.
// The score is rounded but not range-checked.
func ParseResponse(raw string) (domain.Classification, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if raw == "" {
		return domain.Classification{}, errors.New("empty classifier response")
	}

	var resp response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return domain.Classification{}, fmt.Errorf("malformed classifier response: %w", err)
	}
	if resp.Score == nil {
		return domain.Classification{}, errors.New("classifier response has no score")
	}

	category := strings.TrimSpace(resp.Category)
	if category == domain.CategorySystem {
		// reserved for sentinels
		category = domain.CategoryGeneral
	}

	return domain.Classification{
		Score:     int(math.Round(*resp.Score)),
		Summary:   strings.TrimSpace(resp.Summary),
		Category:  category,
		Proximity: strings.TrimSpace(resp.Proximity),
	}, nil
}

// Unconfigured is the sentinel for a missing model credential.
func Unconfigured() domain.Classification {
	return domain.Classification{
		Score:     0,
		Summary:   SummaryUnconfigured,
		Category:  domain.CategorySystem,
		Proximity: domain.ProximitySystem,
	}
}

// Failed is the sentinel for a failed call; the reason is cut to keep records short.
func Failed(err error) domain.Classification {
	reason := err.Error()
	if utf8.RuneCountInString(reason) > maxErrorRunes {
		reason = string([]rune(reason)[:maxErrorRunes])
	}
	return domain.Classification{
		Score:     0,
		Summary:   summaryFailedPrefix + reason,
		Category:  domain.CategorySystem,
		Proximity: domain.ProximityError,
	}
}
