// Package handler contains the HTTP handlers of the Warbler site.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the request (path ids, form fields).
//  2. Call one service method with the current user from the context.
//  3. Answer with a rendered page or a redirect.
//
// Business rules live in package service and access guards in package auth;
// a handler only translates between HTTP and those calls.
package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/auth"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/session"
	"github.com/sakif/warbler/internal/view"
)

// Responder owns everything a response needs besides the page data: the
// templates, the session and the anti-forgery tokens. Every handler struct
// embeds one.
type Responder struct {
	views    *view.Renderer
	sessions *session.Manager
	csrf     *auth.CSRF
	log      logrus.FieldLogger
}

func NewResponder(views *view.Renderer, sessions *session.Manager, csrf *auth.CSRF, log logrus.FieldLogger) *Responder {
	return &Responder{
		views:    views,
		sessions: sessions,
		csrf:     csrf,
		log:      log,
	}
}

// statusOf maps an error kind to its HTTP status.
//
// The service layer returns apperror kinds wrapped with context; errors.Is
// walks the chain, so the wrapping never hides the kind.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// render fills the per-request fields of page, saves the session and
// writes the page with status.
//
// HEADER ORDER MATTERS:
// The session cookie is a header, so Save must run before WriteHeader. The
// page is rendered into a buffer first so a template error can still turn
// into a clean 500.
func (rs *Responder) render(w http.ResponseWriter, r *http.Request, status int, name string, page *view.Page) {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		page.CurrentUser = user
	}
	token, err := rs.csrf.Token(rs.sessions.Nonce(r))
	if err != nil {
		rs.internalError(w, r, err)
		return
	}
	page.CSRFToken = token
	page.Flashes = rs.sessions.Flashes(r)

	var buf bytes.Buffer
	if err := rs.views.Render(&buf, name, page); err != nil {
		rs.internalError(w, r, err)
		return
	}
	if err := rs.sessions.Save(w, r); err != nil {
		rs.internalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		rs.log.WithError(err).Debug("writing response body")
	}
}

// redirect saves the session (so pending flashes survive) and sends a 302.
func (rs *Responder) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if err := rs.sessions.Save(w, r); err != nil {
		rs.internalError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (rs *Responder) flash(r *http.Request, category, message string) {
	rs.sessions.AddFlash(r, category, message)
}

// fail renders the error page for err. Only the status and the
// user-facing message of an *apperror.AppError reach the browser; anything
// else is logged and shown as a generic 500.
func (rs *Responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		rs.internalError(w, r, err)
		return
	}

	rs.log.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	}).Debug("request failed")

	rs.render(w, r, status, view.PageError, &view.Page{
		Title:     http.StatusText(status),
		Status:    status,
		ErrorText: apperror.MessageOf(err, http.StatusText(status)),
	})
}

// internalError logs err and writes a plain 500. It never renders a
// template, since rendering may be what failed.
func (rs *Responder) internalError(w http.ResponseWriter, r *http.Request, err error) {
	rs.log.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Error("internal error")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// currentUser returns the user set by auth.Identify. Handlers behind
// auth.RequireUser can rely on it being present.
func currentUser(r *http.Request) *model.User {
	user, _ := auth.UserFromContext(r.Context())
	return user
}

// NotFound renders the 404 page for unmatched routes.
func (rs *Responder) NotFound(w http.ResponseWriter, r *http.Request) {
	rs.render(w, r, http.StatusNotFound, view.PageError, &view.Page{
		Title:     http.StatusText(http.StatusNotFound),
		Status:    http.StatusNotFound,
		ErrorText: "The page you are looking for does not exist.",
	})
}
