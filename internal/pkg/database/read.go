package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

const defaultWindow = 48 * time.Hour

// pointsWindow fills in a missing bound: to defaults to now and from to two
// days before to.
func pointsWindow(from, to *time.Time, now time.Time) (time.Time, time.Time) {
	end := now
	if to != nil {
		end = *to
	}
	start := end.Add(-defaultWindow)
	if from != nil {
		start = *from
	}
	return start, end
}

// GetPoints returns the values of one field of one device, newest first.
// Without a range the last two days are returned.
func (db *Database) GetPoints(ctx context.Context, tag, field string, from, to *time.Time) (model.StoredPoints, error) {
	start, end := pointsWindow(from, to, time.Now())
	const query = `
	SELECT id, time_stamp, measurement, tag_id, tag_name, field, value
	FROM measurement_point
	WHERE tag_id = $1 AND field = $2 AND time_stamp BETWEEN $3 AND $4
	ORDER BY time_stamp DESC;
	`

	rows, err := db.pool.Query(ctx, query, tag, field, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPoints(rows)
}

// GetLatestPoints returns the most recent value of every (device, field) pair.
func (db *Database) GetLatestPoints(ctx context.Context) (model.StoredPoints, error) {
	const query = `
	SELECT DISTINCT ON (tag_id, field) id, time_stamp, measurement, tag_id, tag_name, field, value
	FROM measurement_point
	ORDER BY tag_id, field, time_stamp DESC;
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPoints(rows)
}

func scanPoints(rows pgx.Rows) (model.StoredPoints, error) {
	var points model.StoredPoints
	for rows.Next() {
		var p model.StoredPoint
		if err := rows.Scan(&p.ID, &p.Time, &p.Measurement, &p.TagID, &p.TagName, &p.Field, &p.Value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return points, nil
		}
		return nil, err
	}

	return points, nil
}
