package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/insightloom-cli/internal/ai"
	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
	"github.com/KaramelBytes/insightloom-cli/internal/dataset"
	"github.com/KaramelBytes/insightloom-cli/internal/report"
)

const salesCSV = `region,units,price
north,10,5
south,12,6
north,11,5
east,13,7
west,9,6
north,10,5
south,14,6
east,12,500
west,11,6
north,12,7
`

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(ctx context.Context, p report.Payload) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
	return logger.WithContext(context.Background())
}

func kinds(findings []analysis.Finding) map[analysis.Kind]int {
	out := map[analysis.Kind]int{}
	for _, f := range findings {
		out[f.Kind]++
	}
	return out
}

func TestRunProducesFindingsAndReport(t *testing.T) {
	r := &mockRenderer{}
	r.On("Render", mock.Anything, mock.MatchedBy(func(p report.Payload) bool {
		return p.Tier == report.TierFull && len(p.Findings) > 0 && strings.Contains(p.Profile, "[SCHEMA]")
	})).Return("# AI report", nil)

	cfg := DefaultConfig()
	cfg.Tier = report.TierFull
	run, err := Run(testContext(t), strings.NewReader(salesCSV), "sales.csv", cfg, r)
	require.NoError(t, err)
	r.AssertExpectations(t)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "sales.csv", run.Source)
	assert.Equal(t, 10, run.Rows)
	assert.Equal(t, 9, run.CleanRows)
	assert.Equal(t, 3, run.Columns)
	assert.Equal(t, 1, run.DuplicateRows)
	assert.Equal(t, "# AI report", run.Report)
	assert.False(t, run.ReportFallback)
	assert.Empty(t, run.ReportError)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	k := kinds(run.Findings)
	assert.Equal(t, 1, k[analysis.KindDuplicate])
	assert.GreaterOrEqual(t, k[analysis.KindOutlier], 1)

	var outlier *analysis.Finding
	for i := range run.Findings {
		if run.Findings[i].Kind == analysis.KindOutlier && run.Findings[i].Column() == "price" {
			outlier = &run.Findings[i]
		}
	}
	require.NotNil(t, outlier)
	assert.Equal(t, []int{7}, outlier.Rows)
	assert.NotEmpty(t, run.Actions)
	assert.NotEmpty(t, run.Summary.DatasetSize)
}

func TestRunFallsBackWhenRendererFails(t *testing.T) {
	r := &mockRenderer{}
	rl := &ai.RateLimitError{APIError: &ai.APIError{StatusCode: 429}}
	r.On("Render", mock.Anything, mock.Anything).
		Return("", &report.ExternalServiceError{Provider: ai.ProviderAnthropic, Err: rl})

	run, err := Run(testContext(t), strings.NewReader(salesCSV), "sales.csv", DefaultConfig(), r)
	require.NoError(t, err)
	assert.NotEmpty(t, run.Findings)
	assert.NotEmpty(t, run.Actions)
	assert.True(t, run.ReportFallback)
	assert.Contains(t, run.ReportError, "rate limited")
	assert.Contains(t, run.Report, "## AT A GLANCE")
	assert.Contains(t, run.Report, "## TOP 3 PRIORITY ACTIONS")
}

func TestRunWithoutRendererUsesFallback(t *testing.T) {
	run, err := Run(context.Background(), strings.NewReader(salesCSV), "sales.csv", DefaultConfig(), nil)
	require.NoError(t, err)
	assert.True(t, run.ReportFallback)
	assert.Empty(t, run.ReportError)
	assert.Equal(t, report.TierExecutive, run.Tier)
}

func TestRunAbortsOnMalformedInput(t *testing.T) {
	r := &mockRenderer{}
	_, err := Run(testContext(t), strings.NewReader("a,b\n1,2,3\n"), "bad.csv", DefaultConfig(), r)
	require.Error(t, err)
	var me *dataset.MalformedInputError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "bad.csv", me.Source)
	r.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.Imputation = "mode"
	_, err := Run(context.Background(), strings.NewReader(salesCSV), "sales.csv", cfg, nil)
	assert.Error(t, err)
}

func TestRunRecordsSkippedAnalyses(t *testing.T) {
	run, err := Run(testContext(t), strings.NewReader("a,b\n1,x\n2,y\n3,z\n"), "tiny.csv", DefaultConfig(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, run.Notes)
	var ide *analysis.InsufficientDataError
	assert.True(t, errors.As(run.Notes[0].Err, &ide))
	assert.Equal(t, "a", run.Notes[0].Column)
}

func TestRunFileUsesBaseName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(salesCSV), 0o644))
	run, err := RunFile(context.Background(), path, DefaultConfig(), report.FallbackRenderer{})
	require.NoError(t, err)
	assert.Equal(t, "sales.csv", run.Source)
	assert.True(t, strings.HasPrefix(run.Report, "# EXECUTIVE BUSINESS REPORT"))
	assert.False(t, run.ReportFallback)
}

func TestMarkdownIncludesSections(t *testing.T) {
	run, err := Run(context.Background(), strings.NewReader(salesCSV), "sales.csv", DefaultConfig(), nil)
	require.NoError(t, err)
	md := run.Markdown()
	assert.True(t, strings.HasPrefix(md, "# Analysis of sales.csv"))
	assert.Contains(t, md, "## Findings")
	assert.Contains(t, md, "| high |")
	assert.Contains(t, md, "## Recommended actions")
	assert.Contains(t, md, "## Report")
	assert.Contains(t, run.SeverityLine(), "high")
	assert.Contains(t, run.PriorityLine(), "critical")
}

func TestRenderReportReturnsRendererError(t *testing.T) {
	run, err := Analyze(context.Background(), strings.NewReader(salesCSV), "sales.csv", DefaultConfig())
	require.NoError(t, err)
	r := &mockRenderer{}
	r.On("Render", mock.Anything, mock.Anything).Return("", errors.New("down"))
	err = RenderReport(context.Background(), run, r)
	assert.EqualError(t, err, "down")
	assert.True(t, run.ReportFallback)
	assert.Equal(t, "down", run.ReportError)
}

func TestAnalyzeConcurrentRuns(t *testing.T) {
	const workers = 8
	var wg sync.WaitGroup
	runs := make([]*AnalysisRun, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runs[i], errs[i] = Analyze(context.Background(), strings.NewReader(salesCSV), "sales.csv", DefaultConfig())
		}(i)
	}
	wg.Wait()
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, len(runs[0].Findings), len(runs[i].Findings))
		assert.Equal(t, len(runs[0].Actions), len(runs[i].Actions))
		assert.Equal(t, runs[0].Summary.KeyMetrics, runs[i].Summary.KeyMetrics)
	}
}

func campaignCSV() string {
	var b strings.Builder
	b.WriteString("spend,revenue\n")
	for i := 0; i < 12; i++ {
		spend := 20 + 2*i
		fmt.Fprintf(&b, "%d,%d\n", spend, 3*spend+i%2)
	}
	return b.String()
}

func TestAnalyzeAddsForecastsAndDrivers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.ForecastPeriods = 3
	cfg.Analysis.TargetColumn = "revenue"
	run, err := Analyze(testContext(t), strings.NewReader(campaignCSV()), "campaign.csv", cfg)
	require.NoError(t, err)

	require.NotEmpty(t, run.Forecasts)
	cols := map[string]analysis.Forecast{}
	for _, f := range run.Forecasts {
		cols[f.Column] = f
		assert.Len(t, f.Values, 3)
	}
	require.Contains(t, cols, "revenue")
	assert.Equal(t, analysis.TrendIncreasing, cols["revenue"].Direction)

	require.NotEmpty(t, run.Drivers)
	assert.Equal(t, "revenue", run.Target)
	assert.Equal(t, "spend", run.Drivers[0].Column)
	assert.Equal(t, "critical", run.Drivers[0].Impact)

	md := run.Markdown()
	assert.Contains(t, md, "## Key drivers of revenue")
	assert.Contains(t, md, "| spend |")
	assert.Contains(t, md, "## Forecasts")
}

func TestAnalyzeNotesUnknownTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.TargetColumn = "profit"
	run, err := Analyze(context.Background(), strings.NewReader(salesCSV), "sales.csv", cfg)
	require.NoError(t, err)
	assert.Empty(t, run.Drivers)
	var found bool
	for _, n := range run.Notes {
		if n.Stage == "drivers" {
			found = true
			assert.True(t, errors.Is(n.Err, analysis.ErrColumnNotFound))
		}
	}
	assert.True(t, found, "expected a drivers note, got %v", run.Notes)
}

func TestAnalyzeReportsDroppedColumns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.MissingHandling = analysis.MissingDropCols
	csv := "id,notes,units\n1,,4\n2,,5\n3,ok,6\n4,,7\n5,,8\n6,,9\n"
	run, err := Analyze(context.Background(), strings.NewReader(csv), "notes.csv", cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, run.DroppedColumns)
	assert.Contains(t, run.Markdown(), "- Dropped columns: notes")
}

func TestPrepareFileCleansWithoutDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.tsv")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(salesCSV, ",", "\t")), 0o644))
	cleaned, err := PrepareFile(context.Background(), path, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "sales.tsv", cleaned.Table.Name)
	assert.Equal(t, 9, cleaned.Table.NumRows())
	assert.Equal(t, 3, cleaned.Table.NumCols())

	cfg := DefaultConfig()
	cfg.Analysis.MissingHandling = "drop"
	_, err = PrepareFile(context.Background(), path, cfg)
	assert.Error(t, err)
}
