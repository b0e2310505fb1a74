package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/noah-isme/gema-antiplagiat/internal/dto"
)

// ServiceFileAnalysis names the analysis service in errors and metrics.
const ServiceFileAnalysis = "file-analysis"

// AnalysisClient talks to the FileAnalysisService.
type AnalysisClient struct {
	baseClient
}

// NewAnalysisClient constructs an analysis service client.
func NewAnalysisClient(cfg Config) *AnalysisClient {
	return &AnalysisClient{baseClient: newBaseClient(ServiceFileAnalysis, cfg)}
}

// StartAnalysis requests the analysis of a work. The returned status distinguishes a new
// run (202) from an existing verdict (200). Known owner ids travel as query parameters.
func (c *AnalysisClient) StartAnalysis(ctx context.Context, workID uint, owner dto.WorkOwner) (dto.AnalyzeResponse, int, error) {
	path := fmt.Sprintf("/analyze/%d", workID)
	query := url.Values{}
	if owner.StudentID != 0 {
		query.Set("studentId", strconv.FormatUint(uint64(owner.StudentID), 10))
	}
	if owner.AssignmentID != 0 {
		query.Set("assignmentId", strconv.FormatUint(uint64(owner.AssignmentID), 10))
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return dto.AnalyzeResponse{}, 0, err
	}

	var result dto.AnalyzeResponse
	status, err := c.doJSON(req, &result)
	if err != nil {
		return dto.AnalyzeResponse{}, status, err
	}
	return result, status, nil
}

// GetReport returns one report.
func (c *AnalysisClient) GetReport(ctx context.Context, reportID uint) (dto.ReportDetails, error) {
	return c.getReport(ctx, fmt.Sprintf("/reports/%d", reportID))
}

// GetWorkReport returns the latest report of a work.
func (c *AnalysisClient) GetWorkReport(ctx context.Context, workID uint) (dto.ReportDetails, error) {
	return c.getReport(ctx, fmt.Sprintf("/works/%d/report", workID))
}

func (c *AnalysisClient) getReport(ctx context.Context, path string) (dto.ReportDetails, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return dto.ReportDetails{}, err
	}

	var report dto.ReportDetails
	if _, err := c.doJSON(req, &report); err != nil {
		return dto.ReportDetails{}, err
	}
	return report, nil
}

// ListAssignmentReports returns the report overview of an assignment.
func (c *AnalysisClient) ListAssignmentReports(ctx context.Context, assignmentID uint) (dto.AssignmentReportsResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/assignments/%d/reports", assignmentID), nil)
	if err != nil {
		return dto.AssignmentReportsResponse{}, err
	}

	var overview dto.AssignmentReportsResponse
	if _, err := c.doJSON(req, &overview); err != nil {
		return dto.AssignmentReportsResponse{}, err
	}
	return overview, nil
}

// Health checks that the analysis service answers.
func (c *AnalysisClient) Health(ctx context.Context) error {
	return c.health(ctx)
}
