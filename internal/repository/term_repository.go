package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-window-api/internal/models"
)

// TermRepository reads academic terms and public holidays.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository creates a new term repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// FindActive returns the currently active term or sql.ErrNoRows.
func (r *TermRepository) FindActive(ctx context.Context) (*models.Term, error) {
	const query = `SELECT id, name, academic_year, start_date, end_date, week_count, is_active, created_at, updated_at
FROM terms WHERE is_active = TRUE ORDER BY start_date DESC LIMIT 1`
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query); err != nil {
		return nil, err
	}
	return &term, nil
}

// FindHoliday returns the holiday on the given date, or nil when the date is a regular day.
func (r *TermRepository) FindHoliday(ctx context.Context, date time.Time) (*models.PublicHoliday, error) {
	const query = `SELECT id, holiday_date, name, requires_reschedule FROM public_holidays WHERE holiday_date = $1 LIMIT 1`
	var holiday models.PublicHoliday
	if err := r.db.GetContext(ctx, &holiday, query, date); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find holiday: %w", err)
	}
	return &holiday, nil
}

// WeekRange returns the Monday..Sunday dates of a 1-based term week. Week 1 starts on the
// Monday of the week containing the term start date.
func (r *TermRepository) WeekRange(term *models.Term, week int) (models.TermWeek, error) {
	if term == nil {
		return models.TermWeek{}, fmt.Errorf("term required")
	}
	if week < 1 || (term.WeekCount > 0 && week > term.WeekCount) {
		return models.TermWeek{}, fmt.Errorf("week %d outside term %s", week, term.ID)
	}
	y, m, d := term.StartDate.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	offset := (int(start.Weekday()) + 6) % 7
	monday := start.AddDate(0, 0, -offset+(week-1)*7)
	return models.TermWeek{
		TermID:     term.ID,
		WeekNumber: week,
		StartDate:  monday,
		EndDate:    monday.AddDate(0, 0, 6),
	}, nil
}
