package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/form"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/repository"
	"github.com/sakif/warbler/internal/service"
	"github.com/sakif/warbler/internal/view"
)

// MessageHandler serves composing, viewing, deleting and liking messages.
// Every route requires a logged-in user.
type MessageHandler struct {
	*Responder
	messages *service.MessageService
	users    *service.UserService
}

func NewMessageHandler(rs *Responder, messages *service.MessageService, users *service.UserService) *MessageHandler {
	return &MessageHandler{
		Responder: rs,
		messages:  messages,
		users:     users,
	}
}

// New renders the compose form.
//
// HTTP: GET /messages/new
func (h *MessageHandler) New(w http.ResponseWriter, r *http.Request) {
	h.renderNew(w, r, http.StatusOK, form.Message{}, nil)
}

// Create posts a message and shows it on the author's profile.
//
// HTTP: POST /messages/new
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(r)

	f := form.ParseMessage(r)
	if errs := form.Validate(f); errs.Any() {
		h.renderNew(w, r, http.StatusBadRequest, f, errs)
		return
	}

	if _, err := h.messages.Create(r.Context(), actor, f.Text); err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			h.renderNew(w, r, http.StatusBadRequest, f, fieldErrors(err))
			return
		}
		h.fail(w, r, err)
		return
	}
	h.redirect(w, r, fmt.Sprintf("/users/%d", actor.ID))
}

func (h *MessageHandler) renderNew(w http.ResponseWriter, r *http.Request, status int, f form.Message, errs form.Errors) {
	h.render(w, r, status, view.PageNewMessage, &view.Page{
		Title:  "New message",
		Form:   f,
		Errors: errs,
	})
}

// Show renders a single message.
//
// HTTP: GET /messages/{id}
func (h *MessageHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "message")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msg, err := h.messages.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	viewer, err := h.users.Viewer(r.Context(), currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, view.PageMessage, &view.Page{
		Title:   "Message",
		Viewer:  viewer,
		Next:    nextMessage,
		NextID:  msg.ID,
		Message: msg,
	})
}

// Delete removes one of the current user's messages.
//
// HTTP: POST /messages/{id}/delete
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(r)
	id, err := pathID(r, "message")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.messages.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}

	fallback := fmt.Sprintf("/users/%d", actor.ID)
	target := destination(r, fallback)
	// The message page of the deleted message is gone now.
	if target == fmt.Sprintf("/messages/%d", id) {
		target = fallback
	}
	h.redirect(w, r, target)
}

// Like adds {id} to the current user's likes.
//
// HTTP: POST /messages/{id}/like
func (h *MessageHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, h.messages.Like)
}

// Unlike removes {id} from the current user's likes.
//
// HTTP: POST /messages/{id}/unlike
func (h *MessageHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, h.messages.Unlike)
}

type likeOp func(ctx context.Context, actor *model.User, id int64) (repository.Change, error)

func (h *MessageHandler) toggleLike(w http.ResponseWriter, r *http.Request, op likeOp) {
	id, err := pathID(r, "message")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := op(r.Context(), currentUser(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirect(w, r, destination(r, "/"))
}
