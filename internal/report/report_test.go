package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/insightloom-cli/internal/ai"
	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
	"github.com/KaramelBytes/insightloom-cli/internal/insight"
)

type mockRuntime struct {
	mock.Mock
}

func (m *mockRuntime) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ai.GenerateResponse), args.Error(1)
}

type streamRuntime struct {
	mockRuntime
	chunks []string
}

func (s *streamRuntime) GenerateStream(_ context.Context, _ ai.GenerateRequest, onDelta func(string)) error {
	for _, c := range s.chunks {
		onDelta(c)
	}
	return nil
}

func samplePayload(tier Tier) Payload {
	return Payload{
		Dataset: insight.DatasetSummary{
			Name: "sales.csv", Rows: 120, Columns: 4,
			Quality: analysis.QualityScore{Completeness: 96, Uniqueness: 100, Score: 97.6, Grade: "Excellent"},
		},
		Profile: "[DATASET SUMMARY]\nRows: 120\n",
		Findings: []analysis.Finding{
			{ID: "f1", Kind: analysis.KindOutlier, Severity: analysis.SeverityHigh, Description: "revenue value 9000 at row 17 is unusual",
				Outlier: &analysis.OutlierDetail{Row: 17, Value: 9000, Method: "iqr", Lower: 10, Upper: 500}},
			{ID: "f2", Kind: analysis.KindTrend, Severity: analysis.SeverityMedium, Description: "units is decreasing",
				Trend: &analysis.TrendDetail{Direction: analysis.TrendDecreasing, Slope: -1.5, TStat: -3.2, N: 120}},
		},
		Actions: []insight.ActionSuggestion{
			{Category: "Unusual Values", Priority: insight.PriorityCritical, Action: "Investigate unusual Revenue values",
				Reason: "1 value outside the normal range", QuickWin: "Check row 17", Owner: "Data Team", Timeline: "This week"},
			{Category: "Performance Alert", Priority: insight.PriorityCritical, Action: "Address the decline in Units",
				Reason: "Units is falling", QuickWin: "Review last month", Owner: "Operations", Timeline: "Immediate"},
			{Category: "Growth Opportunity", Priority: insight.PriorityStrategic, Action: "Scale Margin",
				Reason: "Margin is rising", QuickWin: "Share the win", Owner: "Leadership", Timeline: "This quarter"},
			{Category: "Data Excellence", Priority: insight.PriorityStrategic, Action: "Keep the current data practices",
				Reason: "Quality is high", QuickWin: "Document the process", Owner: "Data Team", Timeline: "Ongoing"},
		},
		Summary: insight.ExecutiveSummary{
			DatasetSize:    "120 records across 4 fields",
			Recommendation: "Data quality is excellent",
			KeyMetrics:     []insight.KeyMetric{{Name: "Revenue", Average: 250.5, Trend: "Increasing", Variability: "Low", Range: "10 to 9000"}},
			Alerts:         []string{"Units is declining"},
		},
		Tier:        tier,
		GeneratedAt: time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC),
	}
}

func TestParseTier(t *testing.T) {
	cases := map[string]Tier{"": TierExecutive, "Executive": TierExecutive, "full": TierFull, " TECHNICAL ": TierTechnical}
	for in, want := range cases {
		got, err := ParseTier(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTier("verbose")
	assert.Error(t, err)
}

func TestBuildPromptPerTier(t *testing.T) {
	exec, tokens := BuildPrompt(samplePayload(TierExecutive))
	assert.Greater(t, tokens, 0)
	assert.Contains(t, exec, "THE HEADLINE")
	assert.Contains(t, exec, "[DATASET SUMMARY]")
	assert.Contains(t, exec, "Data Quality Score: 97.6% (Excellent)")
	assert.Contains(t, exec, "Investigate unusual Revenue values")
	assert.NotContains(t, exec, "method=iqr")

	full, _ := BuildPrompt(samplePayload(TierFull))
	assert.Contains(t, full, "30-DAY ACTION PLAN")
	assert.Contains(t, full, "DATA QUALITY REPORT CARD")

	tech, _ := BuildPrompt(samplePayload(TierTechnical))
	assert.Contains(t, tech, "method=iqr row=17")
	assert.Contains(t, tech, "t=-3.20 n=120")
}

func TestAIRendererGenerate(t *testing.T) {
	rt := &mockRuntime{}
	rt.On("Generate", mock.Anything, mock.MatchedBy(func(req ai.GenerateRequest) bool {
		return req.Model == "m1" && len(req.Messages) == 2 && req.Messages[0].Role == "system" &&
			strings.Contains(req.Messages[1].Content, "[FINDINGS]")
	})).Return(&ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: "# Report"}}}}, nil)

	r := NewAIRenderer(rt, ai.ProviderOpenRouter, "m1")
	out, err := r.Render(context.Background(), samplePayload(TierFull))
	require.NoError(t, err)
	assert.Equal(t, "# Report", out)
	rt.AssertExpectations(t)
}

func TestAIRendererWrapsFailures(t *testing.T) {
	rt := &mockRuntime{}
	rl := &ai.RateLimitError{APIError: &ai.APIError{StatusCode: 429, Message: "slow down"}}
	rt.On("Generate", mock.Anything, mock.Anything).Return(nil, rl)

	_, err := NewAIRenderer(rt, ai.ProviderAnthropic, "").Render(context.Background(), samplePayload(TierExecutive))
	require.Error(t, err)
	var ese *ExternalServiceError
	require.True(t, errors.As(err, &ese))
	assert.Equal(t, ai.ProviderAnthropic, ese.Provider)
	var got *ai.RateLimitError
	assert.True(t, errors.As(err, &got))
}

func TestAIRendererEmptyResponse(t *testing.T) {
	rt := &mockRuntime{}
	rt.On("Generate", mock.Anything, mock.Anything).Return(&ai.GenerateResponse{}, nil)
	_, err := NewAIRenderer(rt, ai.ProviderOllama, "").Render(context.Background(), samplePayload(TierExecutive))
	var ese *ExternalServiceError
	assert.True(t, errors.As(err, &ese))
}

func TestAIRendererStreams(t *testing.T) {
	rt := &streamRuntime{chunks: []string{"Hello", ", ", "world"}}
	var seen []string
	r := NewAIRenderer(rt, ai.ProviderOllama, "llama3.1:8b-instruct")
	r.OnDelta = func(d string) { seen = append(seen, d) }
	out, err := r.Render(context.Background(), samplePayload(TierExecutive))
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", out)
	assert.Len(t, seen, 3)
	rt.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestFallbackSections(t *testing.T) {
	out := Fallback(samplePayload(TierExecutive))
	for _, section := range []string{"## AT A GLANCE", "## KEY METRICS", "## URGENT ISSUES", "## TOP 3 PRIORITY ACTIONS", "## NEXT STEPS"} {
		assert.Contains(t, out, section)
	}
	assert.Contains(t, out, "Generated: March 4, 2026 at 3:30 PM")
	assert.Contains(t, out, "- Units is declining")
	assert.Contains(t, out, "### 3. Scale Margin")
	assert.NotContains(t, out, "### 4.")

	empty := Fallback(Payload{})
	assert.Contains(t, empty, "No urgent issues detected.")
	assert.Contains(t, empty, "No actions suggested")
}

func TestFallbackRendererNeverFails(t *testing.T) {
	var r ReportRenderer = FallbackRenderer{}
	out, err := r.Render(context.Background(), samplePayload(TierFull))
	require.NoError(t, err)
	assert.Contains(t, out, "EXECUTIVE BUSINESS REPORT")
}
