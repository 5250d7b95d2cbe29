package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
)

// MetricsPoint is one completed test's scores and web vitals in the
// append-only history table, used for trend queries
type MetricsPoint struct {
	TestRunID              string       `json:"testRunId"`
	URL                    string       `json:"url"`
	Device                 types.Device `json:"device"`
	Region                 string       `json:"region"`
	CompletedAt            time.Time    `json:"completedAt"`
	PerformanceScore       int32        `json:"performanceScore"`
	AccessibilityScore     int32        `json:"accessibilityScore"`
	BestPracticesScore     int32        `json:"bestPracticesScore"`
	SEOScore               int32        `json:"seoScore"`
	FirstContentfulPaint   float64      `json:"firstContentfulPaint"`
	LargestContentfulPaint float64      `json:"largestContentfulPaint"`
	CumulativeLayoutShift  float64      `json:"cumulativeLayoutShift"`
	TotalBlockingTime      float64      `json:"totalBlockingTime"`
	TimeToInteractive      float64      `json:"timeToInteractive"`
	SpeedIndex             float64      `json:"speedIndex"`
	TotalRequests          int32        `json:"totalRequests"`
	TotalBytes             int64        `json:"totalBytes"`
}

// MetricsHistoryRepository appends completed test metrics to ClickHouse and
// serves trend queries for the history endpoint
type MetricsHistoryRepository struct {
	db *ClickHouseDB
}

// NewMetricsHistoryRepository creates a new metrics history repository
func NewMetricsHistoryRepository(db *ClickHouseDB) *MetricsHistoryRepository {
	return &MetricsHistoryRepository{db: db}
}

// Insert appends one completed test to the history table
func (r *MetricsHistoryRepository) Insert(ctx context.Context, run *models.TestRun, result *models.TestResult, completedAt time.Time) error {
	query := `
		INSERT INTO test_metrics (
			test_run_id, url, device, region, completed_at,
			performance_score, accessibility_score, best_practices_score, seo_score,
			first_contentful_paint, largest_contentful_paint, cumulative_layout_shift,
			total_blocking_time, time_to_interactive, speed_index,
			total_requests, total_bytes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	err := r.db.Conn().Exec(ctx, query,
		run.ID,
		run.URL,
		string(run.Device),
		run.Region,
		completedAt,
		int32(result.PerformanceScore),
		int32(result.AccessibilityScore),
		int32(result.BestPracticesScore),
		int32(result.SEOScore),
		result.FirstContentfulPaint,
		result.LargestContentfulPaint,
		result.CumulativeLayoutShift,
		result.TotalBlockingTime,
		result.TimeToInteractive,
		result.SpeedIndex,
		int32(result.TotalRequests),
		result.TotalBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert metrics history: %w", err)
	}

	return nil
}

// History returns the most recent metrics points for a URL and device,
// newest first
func (r *MetricsHistoryRepository) History(ctx context.Context, url string, device types.Device, limit int) ([]*MetricsPoint, error) {
	query := `
		SELECT test_run_id, url, device, region, completed_at,
			performance_score, accessibility_score, best_practices_score, seo_score,
			first_contentful_paint, largest_contentful_paint, cumulative_layout_shift,
			total_blocking_time, time_to_interactive, speed_index,
			total_requests, total_bytes
		FROM test_metrics
		WHERE url = $1 AND device = $2
		ORDER BY completed_at DESC
		LIMIT $3
	`

	rows, err := r.db.Conn().Query(ctx, query, url, string(device), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics history: %w", err)
	}
	defer rows.Close()

	var points []*MetricsPoint
	for rows.Next() {
		var p MetricsPoint
		var deviceStr string

		err := rows.Scan(
			&p.TestRunID,
			&p.URL,
			&deviceStr,
			&p.Region,
			&p.CompletedAt,
			&p.PerformanceScore,
			&p.AccessibilityScore,
			&p.BestPracticesScore,
			&p.SEOScore,
			&p.FirstContentfulPaint,
			&p.LargestContentfulPaint,
			&p.CumulativeLayoutShift,
			&p.TotalBlockingTime,
			&p.TimeToInteractive,
			&p.SpeedIndex,
			&p.TotalRequests,
			&p.TotalBytes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metrics point: %w", err)
		}

		p.Device = types.Device(deviceStr)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metrics history: %w", err)
	}

	return points, nil
}
