package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
	"github.com/KaramelBytes/insightloom-cli/internal/insight"
)

// Tier selects how much detail the report carries.
type Tier string

const (
	TierExecutive Tier = "executive"
	TierFull      Tier = "full"
	TierTechnical Tier = "technical"
)

// ParseTier accepts a tier name case-insensitively; "" means executive.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case "", TierExecutive:
		return TierExecutive, nil
	case TierFull:
		return TierFull, nil
	case TierTechnical:
		return TierTechnical, nil
	}
	return "", fmt.Errorf("unknown report tier %q (use executive|full|technical)", s)
}

// Payload is everything a renderer may draw on.
type Payload struct {
	Dataset     insight.DatasetSummary
	Profile     string
	Findings    []analysis.Finding
	Actions     []insight.ActionSuggestion
	Summary     insight.ExecutiveSummary
	Tier        Tier
	GeneratedAt time.Time
}

// ReportRenderer turns a payload into report text.
type ReportRenderer interface {
	Render(ctx context.Context, p Payload) (string, error)
}

// ExternalServiceError wraps a failed call to a report backend.
type ExternalServiceError struct {
	Provider string
	Err      error
}

func (e *ExternalServiceError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("report service: %v", e.Err)
	}
	return fmt.Sprintf("report service %s: %v", e.Provider, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// FallbackRenderer renders the deterministic report and never fails.
type FallbackRenderer struct{}

func (FallbackRenderer) Render(_ context.Context, p Payload) (string, error) {
	return Fallback(p), nil
}
