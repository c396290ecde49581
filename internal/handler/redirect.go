package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/warbler/internal/apperror"
)

// Destinations a toggle form may ask to return to. The browser sends a
// name from this list plus an id, never a URL, so a forged form cannot
// bounce the user to another site.
const (
	nextHome      = "home"
	nextUsers     = "users"
	nextProfile   = "profile"
	nextFollowing = "following"
	nextFollowers = "followers"
	nextLikes     = "likes"
	nextMessage   = "message"
)

// destination resolves the "next" and "next_id" form fields. Unknown names
// and names missing a required id fall back to fallback. The directory also
// keeps its search ("next_q") and page ("next_page").
func destination(r *http.Request, fallback string) string {
	next := r.PostFormValue("next")
	id, err := strconv.ParseInt(r.PostFormValue("next_id"), 10, 64)
	hasID := err == nil && id > 0

	switch next {
	case nextHome:
		return "/"
	case nextUsers:
		return usersListing(r.PostFormValue("next_q"), r.PostFormValue("next_page"))
	case nextProfile:
		if hasID {
			return fmt.Sprintf("/users/%d", id)
		}
	case nextFollowing, nextFollowers, nextLikes:
		if hasID {
			return fmt.Sprintf("/users/%d/%s", id, next)
		}
	case nextMessage:
		if hasID {
			return fmt.Sprintf("/messages/%d", id)
		}
	}
	return fallback
}

// usersListing builds the directory URL for a search and page. A page that
// is not a number above one is dropped.
func usersListing(q, rawPage string) string {
	query := url.Values{}
	if q != "" {
		query.Set("q", q)
	}
	if page, err := strconv.Atoi(rawPage); err == nil && page > 1 {
		query.Set("page", strconv.Itoa(page))
	}
	if len(query) == 0 {
		return "/users"
	}
	return "/users?" + query.Encode()
}

// pathID parses the {id} route parameter. A malformed id is reported as a
// missing resource.
func pathID(r *http.Request, resource string) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NotFound(resource, raw)
	}
	return id, nil
}
