// internal/server/tools.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"mcp-glucose-insights/internal/models"
	"mcp-glucose-insights/internal/timeline"
)

var errInvalidParams = errors.New("invalid parameters")

type SubjectParams struct {
	SubjectID string `json:"subject_id" description:"Subject whose data is analysed"`
}

type RangeParams struct {
	SubjectParams
	Start string `json:"start" description:"Range start (YYYY-MM-DD or RFC3339)"`
	End   string `json:"end" description:"Range end, inclusive (YYYY-MM-DD or RFC3339)"`
}

type DateParams struct {
	SubjectParams
	Date string `json:"date" description:"Calendar day (YYYY-MM-DD)"`
}

type WeekParams struct {
	SubjectParams
	WeekStart string `json:"week_start" description:"First day of the week (YYYY-MM-DD)"`
}

type BestWorstParams struct {
	RangeParams
	K int `json:"k,omitempty" description:"Number of meals per list (defaults to 5)"`
}

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal arguments: %v", errInvalidParams, err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("%w: failed to unmarshal parameters: %v", errInvalidParams, err)
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errInvalidParams, fmt.Sprintf(format, args...))
}

func (p SubjectParams) validate() error {
	if p.SubjectID == "" {
		return invalid("subject_id is required")
	}
	return nil
}

// parseTime accepts RFC3339 or a calendar date. Dates resolve to local
// midnight, or to the last instant of the day when endOfDay is set.
func parseTime(value string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation(models.DateLayout, value, loc)
	if err != nil {
		return time.Time{}, invalid("invalid date %q", value)
	}
	if endOfDay {
		_, to := timeline.DaysRange(d, 1, loc)
		return to, nil
	}
	return d, nil
}

func (s *InsightsServer) parseRange(p *RangeParams) (time.Time, time.Time, error) {
	if err := p.validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := parseTime(p.Start, s.app.Location, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTime(p.End, s.app.Location, true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, invalid("end is before start")
	}
	return start, end, nil
}

func (s *InsightsServer) rangeArgs(req *protocol.CallToolRequest) (string, time.Time, time.Time, error) {
	var p RangeParams
	if err := extractParams(req, &p); err != nil {
		return "", time.Time{}, time.Time{}, err
	}
	start, end, err := s.parseRange(&p)
	return p.SubjectID, start, end, err
}

func (s *InsightsServer) dateArgs(req *protocol.CallToolRequest) (string, time.Time, error) {
	var p DateParams
	if err := extractParams(req, &p); err != nil {
		return "", time.Time{}, err
	}
	if err := p.validate(); err != nil {
		return "", time.Time{}, err
	}
	date, err := parseTime(p.Date, s.app.Location, false)
	return p.SubjectID, date, err
}

func (s *InsightsServer) weekArgs(req *protocol.CallToolRequest) (string, time.Time, error) {
	var p WeekParams
	if err := extractParams(req, &p); err != nil {
		return "", time.Time{}, err
	}
	if err := p.validate(); err != nil {
		return "", time.Time{}, err
	}
	weekStart, err := parseTime(p.WeekStart, s.app.Location, false)
	return p.SubjectID, weekStart, err
}

func (s *InsightsServer) handleCorrelateMeals(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	subjectID, start, end, err := s.rangeArgs(req)
	if err != nil {
		return nil, err
	}
	correlations, err := s.app.Engine.CorrelateRange(ctx, subjectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to correlate meals: %w", err)
	}
	return s.createJSONResponse(map[string]interface{}{
		"correlations": correlations,
		"disclaimer":   models.InsightsDisclaimer,
	})
}

func (s *InsightsServer) handleBestWorstMeals(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var p BestWorstParams
	if err := extractParams(req, &p); err != nil {
		return nil, err
	}
	start, end, err := s.parseRange(&p.RangeParams)
	if err != nil {
		return nil, err
	}
	best, worst, err := s.app.Engine.BestAndWorst(ctx, p.SubjectID, start, end, p.K)
	if err != nil {
		return nil, fmt.Errorf("failed to rank meals: %w", err)
	}
	return s.createJSONResponse(map[string]interface{}{
		"best":       best,
		"worst":      worst,
		"disclaimer": models.InsightsDisclaimer,
	})
}

func (s *InsightsServer) handleResponseByMealType(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	subjectID, start, end, err := s.rangeArgs(req)
	if err != nil {
		return nil, err
	}
	byType, err := s.app.Engine.ResponseByMealType(ctx, subjectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to group responses: %w", err)
	}
	return s.createJSONResponse(byType)
}

func (s *InsightsServer) handleDailyTimeline(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	subjectID, date, err := s.dateArgs(req)
	if err != nil {
		return nil, err
	}
	tl, err := s.app.Aggregator.DailyTimeline(ctx, subjectID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to build daily timeline: %w", err)
	}
	return s.createJSONResponse(tl)
}

func (s *InsightsServer) handleWeeklyTimeline(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	subjectID, weekStart, err := s.weekArgs(req)
	if err != nil {
		return nil, err
	}
	tl, err := s.app.Aggregator.WeeklyTimeline(ctx, subjectID, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to build weekly timeline: %w", err)
	}
	return s.createJSONResponse(tl)
}

func (s *InsightsServer) handleRangeStats(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	subjectID, start, end, err := s.rangeArgs(req)
	if err != nil {
		return nil, err
	}
	stats, err := s.app.Aggregator.RangeStats(ctx, subjectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to compute glucose stats: %w", err)
	}
	return s.createJSONResponse(stats)
}

func (s *InsightsServer) handleMealStats(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	subjectID, start, end, err := s.rangeArgs(req)
	if err != nil {
		return nil, err
	}
	stats, err := s.app.Aggregator.MealStats(ctx, subjectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to compute meal stats: %w", err)
	}
	return s.createJSONResponse(stats)
}

func (s *InsightsServer) handleGenerateDaily(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	subjectID, date, err := s.dateArgs(req)
	if err != nil {
		return nil, err
	}
	insight, err := s.app.Generator.GenerateDaily(ctx, subjectID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to generate daily insight: %w", err)
	}
	return s.createJSONResponse(insight)
}

func (s *InsightsServer) handleGetDaily(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	subjectID, date, err := s.dateArgs(req)
	if err != nil {
		return nil, err
	}
	rec, err := s.app.Generator.GetDaily(ctx, subjectID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily insight: %w", err)
	}
	return s.createJSONResponse(map[string]interface{}{
		"found":   rec != nil,
		"insight": rec,
	})
}

func (s *InsightsServer) handleBatchGenerate(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	subjectID, start, end, err := s.rangeArgs(req)
	if err != nil {
		return nil, err
	}
	count := s.app.Generator.BatchGenerate(ctx, subjectID, start, end)
	return s.createJSONResponse(map[string]interface{}{
		"generated": count,
	})
}

func (s *InsightsServer) handleGenerateWeekly(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	subjectID, weekStart, err := s.weekArgs(req)
	if err != nil {
		return nil, err
	}
	summary, err := s.app.Generator.GenerateWeekly(ctx, subjectID, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to generate weekly summary: %w", err)
	}
	return s.createJSONResponse(summary)
}

func (s *InsightsServer) handleGetWeekly(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	subjectID, weekStart, err := s.weekArgs(req)
	if err != nil {
		return nil, err
	}
	rec, err := s.app.Generator.GetWeekly(ctx, subjectID, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to read weekly summary: %w", err)
	}
	return s.createJSONResponse(map[string]interface{}{
		"found":   rec != nil,
		"summary": rec,
	})
}

func (s *InsightsServer) handleDetectPatterns(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	subjectID, start, end, err := s.rangeArgs(req)
	if err != nil {
		return nil, err
	}
	patterns, err := s.app.Detector.Detect(ctx, subjectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to detect patterns: %w", err)
	}
	return s.createJSONResponse(map[string]interface{}{
		"patterns":   patterns,
		"disclaimer": models.InsightsDisclaimer,
	})
}

func (s *InsightsServer) registerTools() {
	s.tools = map[string]toolHandler{
		"correlate_meals":         s.handleCorrelateMeals,
		"best_worst_meals":        s.handleBestWorstMeals,
		"response_by_meal_type":   s.handleResponseByMealType,
		"daily_timeline":          s.handleDailyTimeline,
		"weekly_timeline":         s.handleWeeklyTimeline,
		"range_stats":             s.handleRangeStats,
		"meal_stats":              s.handleMealStats,
		"generate_daily_insight":  s.handleGenerateDaily,
		"get_daily_insight":       s.handleGetDaily,
		"batch_generate_insights": s.handleBatchGenerate,
		"generate_weekly_summary": s.handleGenerateWeekly,
		"get_weekly_summary":      s.handleGetWeekly,
		"detect_patterns":         s.handleDetectPatterns,
	}
	s.log.Info("Registered tools", "count", len(s.tools))
}
