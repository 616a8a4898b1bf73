package database

import (
	"context"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

func (db *Database) Write(ctx context.Context, points []model.Point) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range points {
		for field, value := range p.Fields {
			if _, err := tx.Exec(ctx, `
				INSERT INTO measurement_point (time_stamp, measurement, tag_id, tag_name, field, value)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, p.Time, p.Measurement, p.Tags.ID.String(), p.Tags.Name, field, value); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func (db *Database) RegisterDevice(ctx context.Context, tags model.Tags, _ string) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO device (tag_id, name)
		VALUES ($1, $2)
		ON CONFLICT (tag_id) DO UPDATE SET name = EXCLUDED.name;`, tags.ID.String(), tags.Name)
	return err
}
