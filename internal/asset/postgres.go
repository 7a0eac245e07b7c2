package asset

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/avfoundry/proxa/internal/database"
	"github.com/avfoundry/proxa/internal/verr"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresStore persists assets via the database manager. The Update
// read-modify-write runs inside a transaction with the target row locked
// (SELECT ... FOR UPDATE), which serializes concurrent updates per asset at
// the database level.
type PostgresStore struct {
	db database.Manager
}

func NewPostgresStore(db database.Manager) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(_ context.Context, params CreateParams) (*VideoAsset, error) {
	now := time.Now()
	record := &VideoAsset{
		ID:              uuid.New(),
		Title:           params.Title,
		Description:     params.Description,
		SourceRef:       params.SourceRef,
		ThumbnailRef:    params.ThumbnailRef,
		DurationSeconds: params.DurationSeconds,
		Width:           params.Width,
		Height:          params.Height,
		Codec:           params.Codec,
		Status:          StatusIngested,
		OutputFiles:     OutputFileList{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.db.WrapTx(func(tx *sqlx.Tx) error {
		_, err := tx.NamedExec(`
			INSERT INTO assets (id, title, description, source_ref, thumbnail_ref,
				duration_seconds, width, height, codec, status, job_id, output_files,
				created_at, updated_at)
			VALUES (:id, :title, :description, :source_ref, :thumbnail_ref,
				:duration_seconds, :width, :height, :codec, :status, :job_id, :output_files,
				:created_at, :updated_at)`, record)
		return err
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*VideoAsset, error) {
	var record VideoAsset
	err := s.db.GetSqlxDb().GetContext(ctx, &record, `SELECT * FROM assets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.Newf(verr.NotFound, "asset %s not found", id)
	} else if err != nil {
		return nil, err
	}

	return &record, nil
}

func (s *PostgresStore) Update(_ context.Context, id uuid.UUID, mutate func(*VideoAsset) error) (*VideoAsset, error) {
	var updated *VideoAsset
	err := s.db.WrapTx(func(tx *sqlx.Tx) error {
		var record VideoAsset
		err := tx.Get(&record, `SELECT * FROM assets WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return verr.Newf(verr.NotFound, "asset %s not found", id)
		} else if err != nil {
			return err
		}

		if err := mutate(&record); err != nil {
			return err
		}

		record.UpdatedAt = time.Now()
		if _, err := tx.NamedExec(`
			UPDATE assets SET
				title = :title, description = :description, source_ref = :source_ref,
				thumbnail_ref = :thumbnail_ref, duration_seconds = :duration_seconds,
				width = :width, height = :height, codec = :codec, status = :status,
				job_id = :job_id, output_files = :output_files, updated_at = :updated_at
			WHERE id = :id`, &record); err != nil {
			return err
		}

		updated = &record
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *PostgresStore) Delete(_ context.Context, id uuid.UUID) error {
	return s.db.WrapTx(func(tx *sqlx.Tx) error {
		result, err := tx.Exec(`DELETE FROM assets WHERE id = $1`, id)
		if err != nil {
			return err
		}

		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return verr.Newf(verr.NotFound, "asset %s not found", id)
		}

		return nil
	})
}

func (s *PostgresStore) List(ctx context.Context) ([]*VideoAsset, error) {
	records := make([]*VideoAsset, 0)
	if err := s.db.GetSqlxDb().SelectContext(ctx, &records, `SELECT * FROM assets ORDER BY created_at`); err != nil {
		return nil, err
	}

	return records, nil
}
