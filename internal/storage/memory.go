// internal/storage/memory.go
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcp-glucose-insights/internal/models"
)

// MemoryStorage is an in-process store for tests and demos. It implements the
// read repositories and the insight cache but no set-level aggregation.
type MemoryStorage struct {
	mu       sync.RWMutex
	readings map[string][]models.GlucoseReading
	meals    map[string][]models.MealRecord
	insights map[insightKey]CachedInsight
}

type insightKey struct {
	subjectID string
	date      string
	kind      models.InsightKind
}

var (
	_ GlucoseRepo  = (*MemoryStorage)(nil)
	_ MealRepo     = (*MemoryStorage)(nil)
	_ InsightCache = (*MemoryStorage)(nil)
)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		readings: make(map[string][]models.GlucoseReading),
		meals:    make(map[string][]models.MealRecord),
		insights: make(map[insightKey]CachedInsight),
	}
}

func (m *MemoryStorage) AddReadings(readings ...models.GlucoseReading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range readings {
		m.readings[r.SubjectID] = append(m.readings[r.SubjectID], r)
	}
	for id := range m.readings {
		rs := m.readings[id]
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Timestamp.Before(rs[j].Timestamp) })
	}
}

func (m *MemoryStorage) AddMeals(meals ...models.MealRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meal := range meals {
		m.meals[meal.SubjectID] = append(m.meals[meal.SubjectID], meal)
	}
	for id := range m.meals {
		ms := m.meals[id]
		sort.SliceStable(ms, func(i, j int) bool { return ms[i].Timestamp.Before(ms[j].Timestamp) })
	}
}

// Reset drops all raw data for a subject while keeping cached insights.
func (m *MemoryStorage) Reset(subjectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.readings, subjectID)
	delete(m.meals, subjectID)
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (m *MemoryStorage) ReadingsBetween(ctx context.Context, subjectID string, from, to time.Time) ([]models.GlucoseReading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.GlucoseReading
	for _, r := range m.readings[subjectID] {
		if within(r.Timestamp, from, to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStorage) MealsBetween(ctx context.Context, subjectID string, from, to time.Time) ([]models.MealRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.MealRecord
	for _, meal := range m.meals[subjectID] {
		if within(meal.Timestamp, from, to) {
			cp := meal
			cp.Ingredients = append([]models.Ingredient(nil), meal.Ingredients...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *MemoryStorage) PutInsight(ctx context.Context, subjectID, date string, kind models.InsightKind, payload Payload) error {
	raw, err := EncodePayload(kind, payload)
	if err != nil {
		return err
	}
	version, data, err := DecodePayload(raw)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := insightKey{subjectID: subjectID, date: date, kind: kind}
	now := time.Now().UTC()
	row, ok := m.insights[key]
	if !ok {
		row = CachedInsight{ID: uuid.NewString(), SubjectID: subjectID, Date: date, Kind: kind, CreatedAt: now}
	}
	row.Version = version
	row.Data = data
	row.UpdatedAt = now
	m.insights[key] = row
	return nil
}

func (m *MemoryStorage) GetInsight(ctx context.Context, subjectID, date string, kind models.InsightKind) (*CachedInsight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.insights[insightKey{subjectID: subjectID, date: date, kind: kind}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *MemoryStorage) ListInsights(ctx context.Context, subjectID, from, to string, kind models.InsightKind) ([]CachedInsight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []CachedInsight
	for key, row := range m.insights {
		if key.subjectID == subjectID && key.kind == kind && key.date >= from && key.date <= to {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// InsightCount returns the number of cached rows across all keys.
func (m *MemoryStorage) InsightCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.insights)
}
