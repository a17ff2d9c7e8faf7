package repositories

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/internal/database"
	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/models"
)

const messagesTable = "messages"

var messageStruct = database.NewStruct(new(models.Message))

// MessageRepository handles the append-only SMS log. Rows are inserted and read,
// never updated or deleted.
type MessageRepository struct {
	*Repository
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db database.DB, logger ectologger.Logger) *MessageRepository {
	return &MessageRepository{
		Repository: NewRepository(db, logger),
	}
}

// Append writes one message log entry
func (r *MessageRepository) Append(ctx context.Context, message *models.Message) error {
	ctx, span := tracing.StartSpan(ctx, "MessageRepository.Append")
	defer span.End()

	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(messagesTable).
		Cols("id", "phone", "direction", "text", "has_media", "created_at").
		Values(message.ID, message.Phone, message.Direction, message.Text, message.HasMedia,
			sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&message.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"message_id": message.ID,
			"direction":  message.Direction,
		}).Error("failed to append message")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append message")
	}

	return nil
}

// ListByPhone returns the most recent messages exchanged with a phone number
func (r *MessageRepository) ListByPhone(ctx context.Context, phone string, limit int) ([]models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "MessageRepository.ListByPhone")
	defer span.End()

	if limit < 1 {
		limit = 50
	}

	sb := messageStruct.SelectFrom(messagesTable)
	sb.Where(sb.Equal("phone", phone))
	sb.OrderBy("created_at").Desc()
	sb.Limit(limit)

	query, args := sb.Build()
	messages := []models.Message{}
	err := r.DB().SelectContext(ctx, &messages, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"phone": phone,
		}).Error("failed to list messages")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}

	return messages, nil
}
