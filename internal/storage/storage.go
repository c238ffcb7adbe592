// internal/storage/storage.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mcp-glucose-insights/internal/models"
)

var (
	// ErrStorage marks failures of the backing store. Callers surface it as a server error.
	ErrStorage = errors.New("storage failure")
	// ErrUnsupportedVersion is returned when a cached payload was written by a newer schema.
	ErrUnsupportedVersion = errors.New("unsupported payload version")
)

// GlucoseRepo reads glucose readings for one subject. Ranges are inclusive and
// results are ordered by timestamp ascending.
type GlucoseRepo interface {
	ReadingsBetween(ctx context.Context, subjectID string, from, to time.Time) ([]models.GlucoseReading, error)
}

// MealRepo reads analysed meals for one subject, inclusive range, ascending.
type MealRepo interface {
	MealsBetween(ctx context.Context, subjectID string, from, to time.Time) ([]models.MealRecord, error)
}

// GlucoseAggregate is a raw set-level aggregate over readings.
type GlucoseAggregate struct {
	Count   int
	Sum     float64
	Min     float64
	Max     float64
	High    int // readings > 180
	InRange int // readings within [70,180]
}

// MealTypeAggregate is one group of a meal GROUP BY meal_type.
type MealTypeAggregate struct {
	MealType models.MealType
	Count    int
	Calories float64
}

// GlucoseAggregator is implemented by stores that can aggregate readings
// without materialising them.
type GlucoseAggregator interface {
	AggregateGlucose(ctx context.Context, subjectID string, from, to time.Time) (GlucoseAggregate, error)
}

// MealAggregator is implemented by stores that can group meals by type in the store.
type MealAggregator interface {
	AggregateMeals(ctx context.Context, subjectID string, from, to time.Time) ([]MealTypeAggregate, error)
}

// Payload is a cacheable insight body.
type Payload interface {
	Validate() error
}

// CachedInsight is one row of the insight cache. Data holds the payload body
// without its envelope.
type CachedInsight struct {
	ID        string             `json:"id"`
	SubjectID string             `json:"subjectId"`
	Date      string             `json:"date"`
	Kind      models.InsightKind `json:"kind"`
	Version   int                `json:"version"`
	Data      json.RawMessage    `json:"data"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Decode unmarshals the payload body into v. Unknown fields are ignored.
func (c *CachedInsight) Decode(v interface{}) error {
	return json.Unmarshal(c.Data, v)
}

// InsightCache persists computed insights keyed by (subject, date, kind).
// PutInsight must be an atomic upsert that fully replaces any existing payload.
type InsightCache interface {
	GetInsight(ctx context.Context, subjectID, date string, kind models.InsightKind) (*CachedInsight, error)
	PutInsight(ctx context.Context, subjectID, date string, kind models.InsightKind, payload Payload) error
	ListInsights(ctx context.Context, subjectID, from, to string, kind models.InsightKind) ([]CachedInsight, error)
}
