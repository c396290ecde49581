package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/form"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/service"
	"github.com/sakif/warbler/internal/session"
	"github.com/sakif/warbler/internal/view"
)

// UserHandler serves the user directory, the profile tabs, follow toggles
// and the account settings.
type UserHandler struct {
	*Responder
	users *service.UserService
	auth  *service.AuthService
}

func NewUserHandler(rs *Responder, users *service.UserService, auth *service.AuthService) *UserHandler {
	return &UserHandler{
		Responder: rs,
		users:     users,
		auth:      auth,
	}
}

// List shows users whose name contains q, one page at a time.
//
// HTTP: GET /users?q=&page=
// Auth: Required
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	users, err := h.users.Search(r.Context(), query, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	viewer, err := h.users.Viewer(r.Context(), currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, view.PageUsers, &view.Page{
		Title:   "Users",
		Viewer:  viewer,
		Next:    nextUsers,
		Query:   query,
		PageNum: page,
		HasMore: len(users) == service.UserPageSize,
		Users:   users,
	})
}

// Show renders a profile with the user's latest messages.
//
// HTTP: GET /users/{id}
// Auth: Required
func (h *UserHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	profile, err := h.users.Profile(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderTab(w, r, view.PageProfile, nextProfile, &view.Page{
		Profile:  profile,
		Messages: profile.Messages,
	})
}

// Following lists whom the user follows.
//
// HTTP: GET /users/{id}/following
// Auth: Required
func (h *UserHandler) Following(w http.ResponseWriter, r *http.Request) {
	h.showUserList(w, r, view.PageFollowing, nextFollowing, h.users.Following)
}

// Followers lists who follows the user.
//
// HTTP: GET /users/{id}/followers
// Auth: Required
func (h *UserHandler) Followers(w http.ResponseWriter, r *http.Request) {
	h.showUserList(w, r, view.PageFollowers, nextFollowers, h.users.Followers)
}

func (h *UserHandler) showUserList(
	w http.ResponseWriter,
	r *http.Request,
	page, next string,
	load func(ctx context.Context, id int64) (*service.Profile, []model.User, error),
) {
	id, err := pathID(r, "user")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	profile, users, err := load(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderTab(w, r, page, next, &view.Page{
		Profile: profile,
		Users:   users,
	})
}

// Likes lists the messages the user liked.
//
// HTTP: GET /users/{id}/likes
// Auth: Required
func (h *UserHandler) Likes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "user")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	profile, err := h.users.Likes(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderTab(w, r, view.PageLikes, nextLikes, &view.Page{
		Profile:  profile,
		Messages: profile.Messages,
	})
}

// renderTab fills the fields shared by every profile tab and renders it.
func (h *UserHandler) renderTab(w http.ResponseWriter, r *http.Request, name, next string, page *view.Page) {
	viewer, err := h.users.Viewer(r.Context(), currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page.Title = "@" + page.Profile.User.Username
	page.Viewer = viewer
	page.Next = next
	page.NextID = page.Profile.User.ID
	h.render(w, r, http.StatusOK, name, page)
}

// Follow makes the current user follow {id}.
//
// HTTP: POST /users/follow/{id}
// Auth: Required
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(r)
	id, err := pathID(r, "user")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.users.Follow(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirect(w, r, destination(r, fmt.Sprintf("/users/%d/following", actor.ID)))
}

// Unfollow removes the follow edge to {id}. Unfollowing someone you do not
// follow is a no-op.
//
// HTTP: POST /users/stop-following/{id}
// Auth: Required
func (h *UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(r)
	id, err := pathID(r, "user")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.users.Unfollow(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirect(w, r, destination(r, fmt.Sprintf("/users/%d/following", actor.ID)))
}

// EditProfile renders the profile form prefilled from the current user.
//
// HTTP: GET /users/profile
// Auth: Required
func (h *UserHandler) EditProfile(w http.ResponseWriter, r *http.Request) {
	h.renderEdit(w, r, http.StatusOK, form.ProfileFrom(currentUser(r)), nil)
}

// UpdateProfile saves the profile after re-checking the password.
//
// HTTP: POST /users/profile
// Auth: Required
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(r)

	f := form.ParseProfile(r)
	if errs := form.Validate(f); errs.Any() {
		h.renderEdit(w, r, http.StatusBadRequest, f, errs)
		return
	}

	updated, err := h.auth.UpdateProfile(r.Context(), actor, service.ProfileInput{
		Username:       f.Username,
		Email:          f.Email,
		Location:       f.Location,
		Bio:            f.Bio,
		ImageURL:       f.ImageURL,
		HeaderImageURL: f.HeaderImageURL,
	}, f.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrUnauthorized):
			h.flash(r, session.Danger, apperror.MessageOf(err, "Invalid username/password"))
			h.renderEdit(w, r, http.StatusUnauthorized, f, nil)
		case errors.Is(err, apperror.ErrConflict):
			h.flash(r, session.Danger, apperror.MessageOf(err, "Username and/or email already taken"))
			h.renderEdit(w, r, http.StatusConflict, f, nil)
		case errors.Is(err, apperror.ErrValidation):
			h.renderEdit(w, r, http.StatusBadRequest, f, fieldErrors(err))
		default:
			h.fail(w, r, err)
		}
		return
	}

	h.redirect(w, r, fmt.Sprintf("/users/%d", updated.ID))
}

func (h *UserHandler) renderEdit(w http.ResponseWriter, r *http.Request, status int, f form.Profile, errs form.Errors) {
	f.Password = ""
	h.render(w, r, status, view.PageEditUser, &view.Page{
		Title:  "Edit profile",
		Form:   f,
		Errors: errs,
	})
}

// Delete removes the current user's account and everything they posted.
//
// HTTP: POST /users/delete
// Auth: Required
//
// The session is cleared before the rows go away, so a failure halfway
// never leaves a session pointing at a half-deleted user.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(r)

	h.sessions.Logout(r)
	if _, err := h.auth.DeleteAccount(r.Context(), actor); err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirect(w, r, "/signup")
}
