package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/session"
)

// contextKey is unexported so no other package can collide with it.
type contextKey string

const userKey contextKey = "currentUser"

// UserLookup loads the user a session points at.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// WithUser returns ctx carrying the resolved current user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the current user set by Identify.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// Identify resolves the session's user id into a *model.User once per
// request and stores it in the context. Handlers never read the session id
// themselves.
//
// A session pointing at a user that no longer exists (deleted account in
// another tab) is logged out. Any other lookup failure leaves the request
// anonymous without touching the session.
func Identify(sessions *session.Manager, users UserLookup, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := sessions.UserID(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.GetUserByID(r.Context(), id)
			switch {
			case err == nil:
				r = r.WithContext(WithUser(r.Context(), user))
			case errors.Is(err, apperror.ErrNotFound):
				log.WithField("user_id", id).Info("dropping session of deleted user")
				sessions.Logout(r)
				if err := sessions.Save(w, r); err != nil {
					log.WithError(err).Error("saving session")
				}
			default:
				log.WithError(err).WithField("user_id", id).Error("resolving session user")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser guards routes that need a logged-in user. Anonymous callers
// are redirected to the home page with a flash.
func RequireUser(sessions *session.Manager, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := UserFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			sessions.AddFlash(r, session.Danger, "Access unauthorized.")
			if err := sessions.Save(w, r); err != nil {
				log.WithError(err).Error("saving session")
			}
			http.Redirect(w, r, "/", http.StatusFound)
		})
	}
}

// RequireCSRF rejects state-changing requests whose csrf_token form field
// does not match the session nonce. Safe methods pass through.
func RequireCSRF(csrf *CSRF, sessions *session.Manager, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				next.ServeHTTP(w, r)
				return
			}

			nonce, _ := sessions.CurrentNonce(r)
			if err := csrf.Check(r.PostFormValue(FieldCSRF), nonce); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
				}).Warn("rejected request without valid csrf token")
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
