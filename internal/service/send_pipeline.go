package service

import (
	"context"
	"time"

	"chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/internal/normalize"
	"chatsync/pkg/primary"
	"chatsync/pkg/secondary"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// OutgoingFile is a user-selected attachment payload awaiting upload.
type OutgoingFile struct {
	Name        string
	ContentType string
	Data        []byte
	DurationSec int
}

// SendPipeline accepts a user-authored message, renders it immediately as a
// Pending entry, delivers it through Primary then Secondary, and reconciles
// the placeholder with the authoritative record.
type SendPipeline struct {
	primary       PrimaryStore
	secondary     SecondaryStore
	threads       *ThreadService
	conversations *ConversationService
	uploader      AttachmentUploader
	logger        *logrus.Logger
	tracer        oteltrace.Tracer
	now           func() time.Time
	newID         func() string
}

// NewSendPipeline creates the optimistic send pipeline.
func NewSendPipeline(p PrimaryStore, s SecondaryStore, threads *ThreadService, conversations *ConversationService, uploader AttachmentUploader, logger *logrus.Logger) *SendPipeline {
	return &SendPipeline{
		primary:       p,
		secondary:     s,
		threads:       threads,
		conversations: conversations,
		uploader:      uploader,
		logger:        logger,
		tracer:        otel.Tracer("chatsync/send"),
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Send validates and submits a message. The Pending entry is visible in the
// thread before any network call; the returned message reflects the final
// delivery state. A Failed message stays in the thread for retry.
func (p *SendPipeline) Send(ctx context.Context, senderID, recipientID, content string, file *OutgoingFile) (models.Message, error) {
	if content == "" && file == nil {
		return models.Message{}, errors.NewValidationError("content", "empty message")
	}

	var att *models.Attachment
	if file != nil {
		uploaded, err := p.resolveAttachment(ctx, file)
		if err != nil {
			return models.Message{}, err
		}
		att = uploaded
	}

	queuedAt := p.now().UTC()
	pending := models.Message{
		CorrelationID: p.newID(),
		SenderID:      senderID,
		RecipientID:   recipientID,
		Content:       content,
		Attachment:    att,
		QueuedAt:      queuedAt,
		DeliveryState: models.DeliveryStatePending,
		Origin:        models.SourceLocal,
	}

	// Render immediately; the UI never waits on network.
	p.threads.MergeIncoming(recipientID, pending)
	p.bumpPreview(recipientID, pending)

	return p.deliver(ctx, pending)
}

// Retry resends a Failed message, keeping its correlation id so the
// reconciler can still collapse duplicates from the earlier attempt.
func (p *SendPipeline) Retry(ctx context.Context, counterpartID, correlationID string) (models.Message, error) {
	var pending models.Message
	found := p.threads.UpdateByCorrelation(counterpartID, correlationID, func(m *models.Message) {
		m.DeliveryState = models.DeliveryStatePending
		pending = *m
	})
	if !found {
		return models.Message{}, errors.New(errors.ErrCodeNotFound, "no message with that correlation id")
	}
	return p.deliver(ctx, pending)
}

// resolveAttachment uploads the payload; an upload failure blocks the send
// with a distinct condition.
func (p *SendPipeline) resolveAttachment(ctx context.Context, file *OutgoingFile) (*models.Attachment, error) {
	ctx, span := p.tracer.Start(ctx, "attachment.upload",
		oteltrace.WithAttributes(attribute.Int("bytes", len(file.Data))))
	defer span.End()

	url, err := p.uploader.Upload(ctx, file.Name, file.Data, file.ContentType)
	if err != nil {
		span.RecordError(err)
		if errors.IsValidation(err) {
			return nil, err
		}
		return nil, errors.WrapRetryable(err, errors.ErrCodeUploadFailed, "attachment upload failed").
			WithUserMessage("Upload failed, message not sent")
	}

	return &models.Attachment{
		URL:         url,
		MimeType:    file.ContentType,
		Name:        file.Name,
		ByteSize:    int64(len(file.Data)),
		DurationSec: file.DurationSec,
	}, nil
}

// deliver walks the Primary-then-Secondary chain and reconciles the Pending
// placeholder with whatever record was accepted.
func (p *SendPipeline) deliver(ctx context.Context, pending models.Message) (models.Message, error) {
	ctx, span := p.tracer.Start(ctx, "message.deliver",
		oteltrace.WithAttributes(attribute.String("correlation_id", pending.CorrelationID)))
	defer span.End()

	var wireAtt *primary.Attachment
	if pending.Attachment != nil {
		wireAtt = &primary.Attachment{
			URL:         pending.Attachment.URL,
			MimeType:    pending.Attachment.MimeType,
			Name:        pending.Attachment.Name,
			ByteSize:    pending.Attachment.ByteSize,
			DurationSec: pending.Attachment.DurationSec,
		}
	}

	sent, primaryErr := p.primary.SendMessage(ctx, pending.SenderID, pending.RecipientID, pending.Content, wireAtt, pending.CorrelationID)
	if primaryErr == nil {
		confirmed := normalize.MessageFromPrimary(*sent)
		confirmed.QueuedAt = pending.QueuedAt
		p.threads.MergeIncoming(pending.RecipientID, confirmed)
		p.bumpPreview(pending.RecipientID, confirmed)
		p.mirrorToSecondary(ctx, confirmed)
		span.SetAttributes(attribute.String("outcome", "primary"))
		return confirmed, nil
	}
	errors.LogWarn(p.logger, primaryErr, "Primary delivery failed, trying secondary")

	row := rowFromMessage(pending)
	id, secondaryErr := p.secondary.InsertMessage(ctx, row)
	if secondaryErr == nil {
		row.ID = id
		confirmed := normalize.MessageFromSecondary(row)
		confirmed.CorrelationID = pending.CorrelationID
		confirmed.QueuedAt = pending.QueuedAt
		p.threads.MergeIncoming(pending.RecipientID, confirmed)
		p.bumpPreview(pending.RecipientID, confirmed)
		span.SetAttributes(attribute.String("outcome", "secondary"))
		return confirmed, nil
	}

	// Both backends rejected the send. The Pending entry stays visible
	// with a Failed marker so the user can retry.
	p.threads.UpdateByCorrelation(pending.RecipientID, pending.CorrelationID, func(m *models.Message) {
		m.DeliveryState = models.DeliveryStateFailed
	})
	failed := pending
	failed.DeliveryState = models.DeliveryStateFailed

	err := errors.WrapRetryable(secondaryErr, errors.ErrCodeDeliveryFailed, "both backends rejected the message").
		WithContext("primary_error", primaryErr.Error()).
		WithUserMessage("Message not delivered, tap to retry")
	span.RecordError(err)
	return failed, err
}

// mirrorToSecondary writes a Primary-confirmed message to Secondary for
// redundancy. Failures are logged and dropped; they never change the
// message's confirmed state.
func (p *SendPipeline) mirrorToSecondary(ctx context.Context, msg models.Message) {
	if _, err := p.secondary.InsertMessage(ctx, rowFromMessage(msg)); err != nil {
		errors.LogWarn(p.logger, err, "Secondary mirror write failed")
	}
}

// bumpPreview updates the conversation entry optimistically. A later failure
// does not roll the preview back; the Failed marker on the message itself
// covers that case.
func (p *SendPipeline) bumpPreview(counterpartID string, msg models.Message) {
	preview := msg.Content
	if preview == "" && msg.Attachment != nil {
		preview = msg.Attachment.Name
	}
	p.conversations.Upsert(models.Conversation{
		CounterpartID:      counterpartID,
		Placeholder:        true,
		LastMessagePreview: preview,
		LastMessageAt:      msg.OrderKey(),
	})
}

func rowFromMessage(msg models.Message) secondary.MessageRow {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = msg.QueuedAt
	}
	corr := msg.CorrelationID
	row := secondary.MessageRow{
		SenderID:      msg.SenderID,
		RecipientID:   msg.RecipientID,
		Content:       msg.Content,
		IsRead:        msg.IsRead,
		CreatedAt:     createdAt,
		CorrelationID: &corr,
	}
	if msg.Attachment != nil {
		row.FileURL = &msg.Attachment.URL
		row.FileType = &msg.Attachment.MimeType
		row.FileName = &msg.Attachment.Name
		row.FileSize = &msg.Attachment.ByteSize
		if msg.Attachment.DurationSec > 0 {
			dur := msg.Attachment.DurationSec
			row.DurationSec = &dur
		}
	}
	return row
}
