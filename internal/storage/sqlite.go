// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"mcp-glucose-insights/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

var (
	_ GlucoseRepo       = (*SQLiteStorage)(nil)
	_ MealRepo          = (*SQLiteStorage)(nil)
	_ GlucoseAggregator = (*SQLiteStorage)(nil)
	_ MealAggregator    = (*SQLiteStorage)(nil)
	_ InsightCache      = (*SQLiteStorage)(nil)
)

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    PRAGMA foreign_keys = ON;

    CREATE TABLE IF NOT EXISTS glucose_readings (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        subject_id TEXT NOT NULL,
        ts INTEGER NOT NULL,
        value REAL NOT NULL,
        source TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS meals (
        id TEXT PRIMARY KEY,
        subject_id TEXT NOT NULL,
        ts INTEGER NOT NULL,
        meal_type TEXT NOT NULL,
        total_calories REAL NOT NULL,
        total_carbs_g REAL NOT NULL,
        total_protein_g REAL NOT NULL,
        total_fat_g REAL NOT NULL,
        total_fiber_g REAL NOT NULL
    );

    CREATE TABLE IF NOT EXISTS meal_ingredients (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        meal_id TEXT NOT NULL,
        position INTEGER NOT NULL,
        name TEXT NOT NULL,
        FOREIGN KEY (meal_id) REFERENCES meals(id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS insights (
        id TEXT PRIMARY KEY,
        subject_id TEXT NOT NULL,
        date TEXT NOT NULL,
        kind TEXT NOT NULL,
        version INTEGER NOT NULL,
        payload TEXT NOT NULL,
        created_at INTEGER NOT NULL,
        updated_at INTEGER NOT NULL,
        UNIQUE (subject_id, date, kind)
    );

    CREATE INDEX IF NOT EXISTS idx_readings_subject_ts ON glucose_readings(subject_id, ts);
    CREATE INDEX IF NOT EXISTS idx_meals_subject_ts ON meals(subject_id, ts);
    CREATE INDEX IF NOT EXISTS idx_ingredients_meal_id ON meal_ingredients(meal_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

// SaveReadings appends readings in one transaction.
func (s *SQLiteStorage) SaveReadings(ctx context.Context, readings []models.GlucoseReading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("failed to start transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO glucose_readings (subject_id, ts, value, source)
        VALUES (?, ?, ?, ?)
    `)
	if err != nil {
		return storageErr("failed to prepare reading insert", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, r.SubjectID, millis(r.Timestamp), r.Value, r.Source); err != nil {
			return storageErr("failed to insert reading", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) SaveMeal(ctx context.Context, meal *models.MealRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("failed to start transaction", err)
	}
	defer tx.Rollback()

	// Upsert meal; a re-analysed meal replaces its ingredients wholesale
	mealQuery := `
        INSERT INTO meals (id, subject_id, ts, meal_type, total_calories, total_carbs_g,
            total_protein_g, total_fat_g, total_fiber_g)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            subject_id = excluded.subject_id,
            ts = excluded.ts,
            meal_type = excluded.meal_type,
            total_calories = excluded.total_calories,
            total_carbs_g = excluded.total_carbs_g,
            total_protein_g = excluded.total_protein_g,
            total_fat_g = excluded.total_fat_g,
            total_fiber_g = excluded.total_fiber_g
    `
	_, err = tx.ExecContext(ctx, mealQuery,
		meal.ID, meal.SubjectID, millis(meal.Timestamp), string(meal.MealType),
		meal.TotalCalories, meal.TotalCarbsG, meal.TotalProteinG, meal.TotalFatG, meal.TotalFiberG)
	if err != nil {
		return storageErr("failed to insert meal", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM meal_ingredients WHERE meal_id = ?`, meal.ID); err != nil {
		return storageErr("failed to clear ingredients", err)
	}

	// Insert ingredients
	ingredientQuery := `
        INSERT INTO meal_ingredients (meal_id, position, name)
        VALUES (?, ?, ?)
    `
	for i, ing := range meal.Ingredients {
		if _, err = tx.ExecContext(ctx, ingredientQuery, meal.ID, i, ing.Name); err != nil {
			return storageErr("failed to insert ingredient", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) ReadingsBetween(ctx context.Context, subjectID string, from, to time.Time) ([]models.GlucoseReading, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT ts, value, source
        FROM glucose_readings
        WHERE subject_id = ? AND ts BETWEEN ? AND ?
        ORDER BY ts ASC, id ASC
    `, subjectID, millis(from), millis(to))
	if err != nil {
		return nil, storageErr("failed to query readings", err)
	}
	defer rows.Close()

	var readings []models.GlucoseReading
	for rows.Next() {
		var ts int64
		r := models.GlucoseReading{SubjectID: subjectID}
		if err := rows.Scan(&ts, &r.Value, &r.Source); err != nil {
			return nil, storageErr("failed to scan reading", err)
		}
		r.Timestamp = time.UnixMilli(ts).UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate readings", err)
	}

	return readings, nil
}

func (s *SQLiteStorage) MealsBetween(ctx context.Context, subjectID string, from, to time.Time) ([]models.MealRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, ts, meal_type, total_calories, total_carbs_g, total_protein_g, total_fat_g, total_fiber_g
        FROM meals
        WHERE subject_id = ? AND ts BETWEEN ? AND ?
        ORDER BY ts ASC, id ASC
    `, subjectID, millis(from), millis(to))
	if err != nil {
		return nil, storageErr("failed to query meals", err)
	}
	defer rows.Close()

	var meals []models.MealRecord
	index := make(map[string]int)
	for rows.Next() {
		var ts int64
		var mealType string
		m := models.MealRecord{SubjectID: subjectID}
		err := rows.Scan(&m.ID, &ts, &mealType, &m.TotalCalories, &m.TotalCarbsG,
			&m.TotalProteinG, &m.TotalFatG, &m.TotalFiberG)
		if err != nil {
			return nil, storageErr("failed to scan meal", err)
		}
		m.Timestamp = time.UnixMilli(ts).UTC()
		m.MealType = models.MealType(mealType)
		index[m.ID] = len(meals)
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate meals", err)
	}
	if len(meals) == 0 {
		return meals, nil
	}

	if err := s.loadIngredients(ctx, subjectID, from, to, meals, index); err != nil {
		return nil, err
	}
	return meals, nil
}

// loadIngredients fills ingredients for all meals of the range with one query.
func (s *SQLiteStorage) loadIngredients(ctx context.Context, subjectID string, from, to time.Time, meals []models.MealRecord, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
        SELECT i.meal_id, i.name
        FROM meal_ingredients i
        JOIN meals m ON m.id = i.meal_id
        WHERE m.subject_id = ? AND m.ts BETWEEN ? AND ?
        ORDER BY i.meal_id, i.position
    `, subjectID, millis(from), millis(to))
	if err != nil {
		return storageErr("failed to query ingredients", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mealID, name string
		if err := rows.Scan(&mealID, &name); err != nil {
			return storageErr("failed to scan ingredient", err)
		}
		if i, ok := index[mealID]; ok {
			meals[i].Ingredients = append(meals[i].Ingredients, models.Ingredient{Name: name})
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("failed to iterate ingredients", err)
	}
	return nil
}

func (s *SQLiteStorage) AggregateGlucose(ctx context.Context, subjectID string, from, to time.Time) (GlucoseAggregate, error) {
	var agg GlucoseAggregate
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(value), 0),
               COALESCE(MIN(value), 0),
               COALESCE(MAX(value), 0),
               COALESCE(SUM(CASE WHEN value > ? THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN value >= ? AND value <= ? THEN 1 ELSE 0 END), 0)
        FROM glucose_readings
        WHERE subject_id = ? AND ts BETWEEN ? AND ?
    `, models.TargetHigh, models.TargetLow, models.TargetHigh,
		subjectID, millis(from), millis(to)).
		Scan(&agg.Count, &agg.Sum, &agg.Min, &agg.Max, &agg.High, &agg.InRange)
	if err != nil {
		return GlucoseAggregate{}, storageErr("failed to aggregate readings", err)
	}
	return agg, nil
}

func (s *SQLiteStorage) AggregateMeals(ctx context.Context, subjectID string, from, to time.Time) ([]MealTypeAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT meal_type, COUNT(*), COALESCE(SUM(total_calories), 0)
        FROM meals
        WHERE subject_id = ? AND ts BETWEEN ? AND ?
        GROUP BY meal_type
    `, subjectID, millis(from), millis(to))
	if err != nil {
		return nil, storageErr("failed to group meals", err)
	}
	defer rows.Close()

	var groups []MealTypeAggregate
	for rows.Next() {
		var g MealTypeAggregate
		var mealType string
		if err := rows.Scan(&mealType, &g.Count, &g.Calories); err != nil {
			return nil, storageErr("failed to scan meal group", err)
		}
		g.MealType = models.MealType(mealType)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate meal groups", err)
	}
	return groups, nil
}

// PutInsight upserts in a single statement. An existing row keeps its id and
// created_at; version and payload are replaced.
func (s *SQLiteStorage) PutInsight(ctx context.Context, subjectID, date string, kind models.InsightKind, payload Payload) error {
	raw, err := EncodePayload(kind, payload)
	if err != nil {
		return err
	}
	now := millis(time.Now())
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO insights (id, subject_id, date, kind, version, payload, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (subject_id, date, kind) DO UPDATE SET
            version = excluded.version,
            payload = excluded.payload,
            updated_at = excluded.updated_at
    `, uuid.NewString(), subjectID, date, string(kind), PayloadVersion, string(raw), now, now)
	if err != nil {
		return storageErr("failed to upsert insight", err)
	}
	return nil
}

const insightColumns = `id, subject_id, date, kind, payload, created_at, updated_at`

func (s *SQLiteStorage) GetInsight(ctx context.Context, subjectID, date string, kind models.InsightKind) (*CachedInsight, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT `+insightColumns+`
        FROM insights
        WHERE subject_id = ? AND date = ? AND kind = ?
    `, subjectID, date, string(kind))

	insight, err := scanInsight(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return insight, nil
}

func (s *SQLiteStorage) ListInsights(ctx context.Context, subjectID, from, to string, kind models.InsightKind) ([]CachedInsight, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+insightColumns+`
        FROM insights
        WHERE subject_id = ? AND kind = ? AND date >= ? AND date <= ?
        ORDER BY date ASC
    `, subjectID, string(kind), from, to)
	if err != nil {
		return nil, storageErr("failed to query insights", err)
	}
	defer rows.Close()

	var insights []CachedInsight
	for rows.Next() {
		insight, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		insights = append(insights, *insight)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate insights", err)
	}
	return insights, nil
}

// CountInsights reports how many rows exist for a key.
func (s *SQLiteStorage) CountInsights(ctx context.Context, subjectID, date string, kind models.InsightKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM insights WHERE subject_id = ? AND date = ? AND kind = ?
    `, subjectID, date, string(kind)).Scan(&n)
	if err != nil {
		return 0, storageErr("failed to count insights", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInsight(row rowScanner) (*CachedInsight, error) {
	var (
		c                    CachedInsight
		kind, payload        string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.SubjectID, &c.Date, &kind, &payload, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, storageErr("failed to scan insight", err)
	}
	version, data, err := DecodePayload([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("insight %s/%s/%s: %w", c.SubjectID, c.Date, kind, err)
	}
	c.Kind = models.InsightKind(kind)
	c.Version = version
	c.Data = data
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &c, nil
}
