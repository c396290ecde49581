package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/metrics"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/repository"
)

// MessageService posts, deletes and likes messages and builds timelines.
type MessageService struct {
	messages repository.MessageRepository
	likes    repository.LikeRepository
	events   metrics.Recorder
	log      logrus.FieldLogger
}

func NewMessageService(store repository.Store, events metrics.Recorder, log logrus.FieldLogger) *MessageService {
	return &MessageService{
		messages: store,
		likes:    store,
		events:   events,
		log:      log,
	}
}

// Create posts text as actor. The text is trimmed and must be 1 to
// model.MaxMessageLength characters.
func (s *MessageService) Create(ctx context.Context, actor *model.User, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "This field is required.")
	}
	if utf8.RuneCountInString(text) > model.MaxMessageLength {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("Field cannot be longer than %d characters.", model.MaxMessageLength))
	}

	msg := &model.Message{Text: text, UserID: actor.ID}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("service/message: create: %w", err)
	}

	s.events.Record(metrics.EventMessage)
	s.log.WithFields(logrus.Fields{"message_id": msg.ID, "user_id": actor.ID}).Info("message posted")
	return msg, nil
}

func (s *MessageService) Get(ctx context.Context, id int64) (*model.Message, error) {
	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/message: get %d: %w", id, err)
	}
	return msg, nil
}

// Delete removes a message the actor owns. Someone else's message is
// apperror.ErrForbidden; a row that vanished after the ownership check
// reports repository.Unchanged.
func (s *MessageService) Delete(ctx context.Context, actor *model.User, id int64) (repository.Change, error) {
	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("service/message: delete %d: %w", id, err)
	}
	if !msg.OwnedBy(actor.ID) {
		s.log.WithFields(logrus.Fields{"message_id": id, "user_id": actor.ID}).Warn("refused to delete another user's message")
		return 0, apperror.Forbidden("You can only delete your own messages.")
	}

	change, err := s.messages.DeleteMessage(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("service/message: delete %d: %w", id, err)
	}
	if change == repository.Changed {
		s.events.Record(metrics.EventMessageDel)
		s.log.WithFields(logrus.Fields{"message_id": id, "user_id": actor.ID}).Info("message deleted")
	}
	return change, nil
}

// likeTarget loads a message the actor may like: it exists and belongs to
// someone else.
func (s *MessageService) likeTarget(ctx context.Context, actor *model.User, id int64) error {
	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.OwnedBy(actor.ID) {
		return apperror.Forbidden("You cannot like your own message.")
	}
	return nil
}

// Like records that actor likes message id. Liking twice reports
// repository.Unchanged.
func (s *MessageService) Like(ctx context.Context, actor *model.User, id int64) (repository.Change, error) {
	if err := s.likeTarget(ctx, actor, id); err != nil {
		return 0, fmt.Errorf("service/message: like %d: %w", id, err)
	}

	change, err := s.likes.Like(ctx, model.Like{UserID: actor.ID, MessageID: id})
	if err != nil {
		return 0, fmt.Errorf("service/message: like %d: %w", id, err)
	}
	if change == repository.Changed {
		s.events.Record(metrics.EventLike)
	}
	return change, nil
}

// Unlike removes the like. A like that does not exist reports
// repository.Unchanged.
func (s *MessageService) Unlike(ctx context.Context, actor *model.User, id int64) (repository.Change, error) {
	if err := s.likeTarget(ctx, actor, id); err != nil {
		return 0, fmt.Errorf("service/message: unlike %d: %w", id, err)
	}

	change, err := s.likes.Unlike(ctx, model.Like{UserID: actor.ID, MessageID: id})
	if err != nil {
		return 0, fmt.Errorf("service/message: unlike %d: %w", id, err)
	}
	if change == repository.Changed {
		s.events.Record(metrics.EventUnlike)
	}
	return change, nil
}

// Timeline returns the newest repository.TimelineLimit messages written by
// actor or anyone actor follows.
func (s *MessageService) Timeline(ctx context.Context, actor *model.User) ([]model.Message, error) {
	msgs, err := s.messages.Timeline(ctx, actor.ID, repository.TimelineLimit)
	if err != nil {
		return nil, fmt.Errorf("service/message: timeline of %d: %w", actor.ID, err)
	}
	return msgs, nil
}
