package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/auth"
	"github.com/sakif/warbler/internal/form"
	"github.com/sakif/warbler/internal/metrics"
	"github.com/sakif/warbler/internal/service"
	"github.com/sakif/warbler/internal/session"
	"github.com/sakif/warbler/internal/view"
)

// AuthHandler serves signup, login and logout.
//
// HANDLER RESPONSIBILITIES:
//   - ShowSignup / Signup → create an account and log it in
//   - ShowLogin / Login   → check credentials and log in
//   - Logout              → forget the session user
//
// The session is the only login state: there is no token for the browser
// to keep, so logging out is a session change plus a redirect.
type AuthHandler struct {
	*Responder
	auth   *service.AuthService
	events metrics.Recorder
}

func NewAuthHandler(rs *Responder, auth *service.AuthService, events metrics.Recorder) *AuthHandler {
	return &AuthHandler{
		Responder: rs,
		auth:      auth,
		events:    events,
	}
}

// ShowSignup renders the signup form. Visiting it logs out whoever is
// logged in.
//
// HTTP: GET /signup
func (h *AuthHandler) ShowSignup(w http.ResponseWriter, r *http.Request) {
	r = h.forgetUser(r)
	h.render(w, r, http.StatusOK, view.PageSignup, &view.Page{
		Title: "Sign up",
		Form:  form.Signup{},
	})
}

// Signup creates the account and logs it in.
//
// HTTP: POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	r = h.forgetUser(r)

	f := form.ParseSignup(r)
	if errs := form.Validate(f); errs.Any() {
		h.renderSignup(w, r, http.StatusBadRequest, f, errs)
		return
	}

	user, err := h.auth.Signup(r.Context(), service.SignupInput{
		Username: f.Username,
		Email:    f.Email,
		Password: f.Password,
		ImageURL: f.ImageURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrConflict):
			h.flash(r, session.Danger, apperror.MessageOf(err, "Username and/or email already taken"))
			h.renderSignup(w, r, http.StatusConflict, f, nil)
		case errors.Is(err, apperror.ErrValidation):
			h.renderSignup(w, r, http.StatusBadRequest, f, fieldErrors(err))
		default:
			h.fail(w, r, err)
		}
		return
	}

	h.sessions.Login(r, user.ID)
	h.redirect(w, r, "/")
}

func (h *AuthHandler) renderSignup(w http.ResponseWriter, r *http.Request, status int, f form.Signup, errs form.Errors) {
	// Never echo the password back into the page.
	f.Password = ""
	h.render(w, r, status, view.PageSignup, &view.Page{
		Title:  "Sign up",
		Form:   f,
		Errors: errs,
	})
}

// ShowLogin renders the login form.
//
// HTTP: GET /login
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, view.PageLogin, &view.Page{
		Title: "Log in",
		Form:  form.Login{},
	})
}

// Login checks the credentials and greets the user.
//
// HTTP: POST /login
//
// A wrong password and an unknown username answer identically with 401,
// so the form cannot be used to probe which usernames exist.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	f := form.ParseLogin(r)
	if errs := form.Validate(f); errs.Any() {
		h.renderLogin(w, r, http.StatusBadRequest, f, errs)
		return
	}

	user, err := h.auth.Authenticate(r.Context(), f.Username, f.Password)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			h.flash(r, session.Danger, apperror.MessageOf(err, "Invalid credentials."))
			h.renderLogin(w, r, http.StatusUnauthorized, f, nil)
			return
		}
		h.fail(w, r, err)
		return
	}

	h.sessions.Login(r, user.ID)
	h.flash(r, session.Success, fmt.Sprintf("Hello, %s!", user.Username))
	h.redirect(w, r, "/")
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, f form.Login, errs form.Errors) {
	f.Password = ""
	h.render(w, r, status, view.PageLogin, &view.Page{
		Title:  "Log in",
		Form:   f,
		Errors: errs,
	})
}

// Logout ends the session and sends the browser to the landing page.
//
// HTTP: POST /logout
// Auth: Required
//
// Logout changes state, so it is a POST carrying the csrf token. A GET
// could be triggered by any page the user visits.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	h.sessions.Logout(r)
	h.events.Record(metrics.EventLogout)
	h.log.WithField("user_id", user.ID).Info("user logged out")

	h.flash(r, session.Success, fmt.Sprintf("Goodbye, %s", user.Username))
	h.redirect(w, r, "/")
}

// forgetUser logs out the session user, if any, and returns r without the
// user in its context so the page renders as anonymous.
func (h *AuthHandler) forgetUser(r *http.Request) *http.Request {
	if _, ok := auth.UserFromContext(r.Context()); !ok {
		return r
	}
	h.sessions.Logout(r)
	return r.WithContext(auth.WithUser(r.Context(), nil))
}

// fieldErrors turns a service validation error into a form error for its
// field. Errors without a field are reported under "form".
func fieldErrors(err error) form.Errors {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return form.Errors{"form": err.Error()}
	}
	field := appErr.Field
	if field == "" {
		field = "form"
	}
	return form.Errors{field: appErr.Message}
}
