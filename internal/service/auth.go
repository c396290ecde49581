// Package service holds Warbler's business rules. It sits between the
// HTTP handlers and the repositories:
//
//	handler (HTTP) → service (rules) → repository (SQL)
//
// Services take and return plain values and apperror kinds. They never see
// an *http.Request, a session or a status code: the handler decides what a
// NotFound or Conflict looks like on the page.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/auth"
	"github.com/sakif/warbler/internal/metrics"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/repository"
)

// MinPasswordLength is the shortest password Signup accepts.
const MinPasswordLength = 6

// Credential failures. The texts are shown to the user as flashes.
const (
	msgInvalidCredentials = "Invalid credentials."
	msgInvalidReauth      = "Invalid username/password"
)

// AuthService creates accounts and checks credentials.
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	events    metrics.Recorder
	log       logrus.FieldLogger
}

func NewAuthService(users repository.UserRepository, passwords *auth.PasswordService, events metrics.Recorder, log logrus.FieldLogger) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		events:    events,
		log:       log,
	}
}

// SignupInput carries the signup form. ImageURL may be empty.
type SignupInput struct {
	Username string
	Email    string
	Password string
	ImageURL string
}

// Signup creates an account. A taken username or email returns
// apperror.ErrConflict and leaves the database unchanged.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	if username == "" {
		return nil, apperror.ValidationFailed("username", "This field is required.")
	}
	if email == "" {
		return nil, apperror.ValidationFailed("email", "This field is required.")
	}
	if len([]rune(in.Password)) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Field must be at least %d characters long.", MinPasswordLength))
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", "Field cannot be longer than 72 bytes.")
		}
		return nil, fmt.Errorf("service/auth: signup: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		ImageURL:     strings.TrimSpace(in.ImageURL),
	}
	user.ApplyImageDefaults()

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.log.WithField("username", username).Info("signup rejected: username or email taken")
		}
		return nil, fmt.Errorf("service/auth: signup: %w", err)
	}

	s.events.Record(metrics.EventSignup)
	s.log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("user signed up")
	return user, nil
}

// Authenticate returns the user when password matches. An unknown username
// and a wrong password produce the same error and take about the same
// time.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: authenticate: %w", err)
		}
		s.passwords.VerifyNothing(password)
		s.events.Record(metrics.EventLoginFailed)
		return nil, apperror.Unauthorized(msgInvalidCredentials)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrInvalidPassword) {
			s.log.WithError(err).WithField("user_id", user.ID).Error("stored password hash is unreadable")
		}
		s.events.Record(metrics.EventLoginFailed)
		return nil, apperror.Unauthorized(msgInvalidCredentials)
	}

	s.events.Record(metrics.EventLogin)
	s.log.WithField("user_id", user.ID).Info("user logged in")
	return user, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %d: %w", id, err)
	}
	return user, nil
}

// ProfileInput carries the edit-profile form. Empty image fields fall back
// to the default images.
type ProfileInput struct {
	Username       string
	Email          string
	Location       string
	Bio            string
	ImageURL       string
	HeaderImageURL string
}

// UpdateProfile re-checks the actor's password before saving the new
// profile fields. The password itself is never changed here.
func (s *AuthService) UpdateProfile(ctx context.Context, actor *model.User, in ProfileInput, password string) (*model.User, error) {
	// Re-read the row: the actor value may predate a change made in
	// another tab.
	current, err := s.users.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: update profile: %w", err)
	}
	if err := s.passwords.Verify(current.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized(msgInvalidReauth)
	}

	updated := *current
	updated.Username = strings.TrimSpace(in.Username)
	updated.Email = strings.TrimSpace(in.Email)
	updated.Location = strings.TrimSpace(in.Location)
	updated.Bio = strings.TrimSpace(in.Bio)
	updated.ImageURL = strings.TrimSpace(in.ImageURL)
	updated.HeaderImageURL = strings.TrimSpace(in.HeaderImageURL)
	updated.ApplyImageDefaults()

	if updated.Username == "" {
		return nil, apperror.ValidationFailed("username", "This field is required.")
	}
	if updated.Email == "" {
		return nil, apperror.ValidationFailed("email", "This field is required.")
	}

	if err := s.users.UpdateUser(ctx, &updated); err != nil {
		return nil, fmt.Errorf("service/auth: update profile: %w", err)
	}

	s.log.WithField("user_id", updated.ID).Info("profile updated")
	return &updated, nil
}

// DeleteAccount removes the actor's messages and account in one
// transaction. Deleting an account that is already gone reports
// repository.Unchanged. The caller clears the session first.
func (s *AuthService) DeleteAccount(ctx context.Context, actor *model.User) (repository.Change, error) {
	change, err := s.users.DeleteUser(ctx, actor.ID)
	if err != nil {
		return 0, fmt.Errorf("service/auth: delete account %d: %w", actor.ID, err)
	}

	if change == repository.Changed {
		s.events.Record(metrics.EventAccountDel)
		s.log.WithFields(logrus.Fields{
			"user_id":  actor.ID,
			"username": actor.Username,
		}).Info("account deleted")
	}
	return change, nil
}
