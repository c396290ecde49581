package handler

import (
	"net/http"

	"github.com/sakif/warbler/internal/service"
	"github.com/sakif/warbler/internal/view"
)

// HomeHandler serves the root page: the timeline for a logged-in user and
// the landing page for everyone else.
type HomeHandler struct {
	*Responder
	messages *service.MessageService
	users    *service.UserService
}

func NewHomeHandler(rs *Responder, messages *service.MessageService, users *service.UserService) *HomeHandler {
	return &HomeHandler{
		Responder: rs,
		messages:  messages,
		users:     users,
	}
}

// Home shows the newest messages by the user and the people they follow.
//
// HTTP: GET /
func (h *HomeHandler) Home(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(r)
	if actor == nil {
		h.render(w, r, http.StatusOK, view.PageLanding, &view.Page{Title: "Warbler"})
		return
	}

	timeline, err := h.messages.Timeline(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	header, err := h.users.Header(r.Context(), actor.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	viewer, err := h.users.Viewer(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, view.PageHome, &view.Page{
		Title:    "Home",
		Viewer:   viewer,
		Next:     nextHome,
		Profile:  header,
		Messages: timeline,
	})
}
