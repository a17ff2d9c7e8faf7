package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/internal/database"
	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/models"
)

const mediaTable = "media_objects"

var mediaStruct = database.NewStruct(new(models.MediaObject))

// MediaRepository stores proof media bodies
type MediaRepository struct {
	*Repository
}

// NewMediaRepository creates a new media repository
func NewMediaRepository(db database.DB, logger ectologger.Logger) *MediaRepository {
	return &MediaRepository{
		Repository: NewRepository(db, logger),
	}
}

// Store writes a media object under its key
func (r *MediaRepository) Store(ctx context.Context, object *models.MediaObject) error {
	ctx, span := tracing.StartSpan(ctx, "MediaRepository.Store")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(mediaTable).
		Cols("key", "content_type", "body", "created_at").
		Values(object.Key, object.ContentType, object.Body, sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&object.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"media_key": object.Key,
		}).Error("failed to store media object")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store media object")
	}

	return nil
}

// GetByKey retrieves a media object
func (r *MediaRepository) GetByKey(ctx context.Context, key string) (*models.MediaObject, error) {
	ctx, span := tracing.StartSpan(ctx, "MediaRepository.GetByKey")
	defer span.End()

	sb := mediaStruct.SelectFrom(mediaTable)
	sb.Where(sb.Equal("key", key))

	query, args := sb.Build()
	var object models.MediaObject
	err := r.DB().GetContext(ctx, &object, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "media %s does not exist", key)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"media_key": key,
		}).Error("failed to get media object")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get media object")
	}

	return &object, nil
}
