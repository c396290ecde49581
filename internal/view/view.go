// Package view renders Warbler's HTML pages from templates embedded in the
// binary.
//
// TEMPLATE COMPOSITION:
// Every page is parsed together with layout.html (which defines "layout"
// and calls {{template "content" .}}) and partials.html (shared blocks such
// as the message list and the CSRF field). The page file defines
// "content". Parsing happens once in New; Render only executes.
package view

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sakif/warbler/internal/form"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/service"
	"github.com/sakif/warbler/internal/session"
)

//go:embed templates/*.html
var files embed.FS

// Page names accepted by Render.
const (
	PageHome       = "home.html"
	PageLanding    = "landing.html"
	PageSignup     = "signup.html"
	PageLogin      = "login.html"
	PageUsers      = "users.html"
	PageProfile    = "profile.html"
	PageFollowing  = "following.html"
	PageFollowers  = "followers.html"
	PageLikes      = "likes.html"
	PageEditUser   = "edit_user.html"
	PageNewMessage = "new_message.html"
	PageMessage    = "message.html"
	PageError      = "error.html"
)

var pages = []string{
	PageHome, PageLanding, PageSignup, PageLogin, PageUsers, PageProfile,
	PageFollowing, PageFollowers, PageLikes, PageEditUser, PageNewMessage,
	PageMessage, PageError,
}

// Page is the data every template receives. Handlers fill the fields their
// page uses; the responder fills CurrentUser, CSRFToken and Flashes.
type Page struct {
	Title       string
	CurrentUser *model.User
	Viewer      *service.Viewer
	CSRFToken   string
	Flashes     []session.Flash

	// Where follow/like/delete forms on this page send the browser back to.
	Next   string
	NextID int64

	Form   any
	Errors form.Errors

	Query    string
	PageNum  int
	HasMore  bool
	Profile  *service.Profile
	Users    []model.User
	Messages []model.Message
	Message  *model.Message

	Status    int
	ErrorText string
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		return t.Format("02 January 2006")
	},
	"add": func(a, b int) int {
		return a + b
	},
	// dict builds the argument for partials that need the page and an item:
	// {{template "message-item" (dict "Root" $ "Msg" .)}}
	"dict": func(pairs ...any) (map[string]any, error) {
		if len(pairs)%2 != 0 {
			return nil, errors.New("dict: odd number of arguments")
		}
		m := make(map[string]any, len(pairs)/2)
		for i := 0; i < len(pairs); i += 2 {
			key, ok := pairs[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
			}
			m[key] = pairs[i+1]
		}
		return m, nil
	},
}

// Renderer holds one parsed template set per page.
type Renderer struct {
	templates map[string]*template.Template
}

// New parses every page. It fails on the first template error so a broken
// template stops the server at startup rather than on first request.
func New() (*Renderer, error) {
	templates := make(map[string]*template.Template, len(pages))
	for _, name := range pages {
		t, err := template.New(name).Funcs(funcs).ParseFS(files,
			"templates/layout.html",
			"templates/partials.html",
			"templates/"+name,
		)
		if err != nil {
			return nil, fmt.Errorf("view: parsing %s: %w", name, err)
		}
		templates[name] = t
	}
	return &Renderer{templates: templates}, nil
}

// Render executes page name into w. Callers writing to a live response
// should render into a buffer first: a template can fail halfway.
func (r *Renderer) Render(w io.Writer, name string, data *Page) error {
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("view: unknown page %q", name)
	}
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		return fmt.Errorf("view: rendering %s: %w", name, err)
	}
	return nil
}
