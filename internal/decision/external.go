package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/remediation-kit/remediation-kit/internal/finding"
	"github.com/remediation-kit/remediation-kit/internal/logging"
)

// ExternalBridge calls a configured HTTP endpoint that wraps an LLM
// decision service, falling back to FallbackBridge on any failure —
// the same ToolUnavailable-downgrades-rather-than-aborts posture the
// teacher's tool adapters use for optional external dependencies.
type ExternalBridge struct {
	Endpoint string
	Client   *http.Client
	fallback Bridge
}

// NewExternalBridge builds a bridge that posts to endpoint and falls
// back to the deterministic rule (backed by patterns) on any error.
func NewExternalBridge(endpoint string, timeout time.Duration, patterns PatternReader) *ExternalBridge {
	return &ExternalBridge{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
		fallback: NewFallbackBridge(patterns),
	}
}

type externalRequest struct {
	Findings []finding.Finding `json:"findings"`
}

type externalResponse struct {
	Actions   map[string]Action `json:"actions"`
	Rationale map[string]string `json:"rationale"`
}

func (b *ExternalBridge) Decide(ctx context.Context, findings []finding.Finding) (Plan, error) {
	log := logging.Component("decision")

	if b.Endpoint == "" {
		log.Debug().Msg("no external decision endpoint configured, using fallback bridge")
		return b.fallback.Decide(ctx, findings)
	}

	body, err := json.Marshal(externalRequest{Findings: findings})
	if err != nil {
		return b.fallback.Decide(ctx, findings)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Msg("building decision request failed, using fallback bridge")
		return b.fallback.Decide(ctx, findings)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("decision endpoint unreachable, using fallback bridge")
		return b.fallback.Decide(ctx, findings)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Msg("decision endpoint returned non-200, using fallback bridge")
		return b.fallback.Decide(ctx, findings)
	}

	var parsed externalResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		log.Warn().Err(err).Msg("decision endpoint returned unparsable body, using fallback bridge")
		return b.fallback.Decide(ctx, findings)
	}

	plan := newPlan("external")
	plan.Actions = parsed.Actions
	plan.Rationale = parsed.Rationale
	if plan.Actions == nil {
		return b.fallback.Decide(ctx, findings)
	}
	return plan, nil
}
