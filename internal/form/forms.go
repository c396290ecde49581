package form

import (
	"net/http"

	"github.com/sakif/warbler/internal/model"
)

// Signup is the account creation form.
type Signup struct {
	Username string `form:"username"  validate:"required"`
	Email    string `form:"email"     validate:"required,email"`
	Password string `form:"password"  validate:"min=6"`
	ImageURL string `form:"image_url" validate:"omitempty,url"`
}

func ParseSignup(r *http.Request) Signup {
	return Signup{
		Username: value(r, "username"),
		Email:    value(r, "email"),
		Password: r.PostFormValue("password"),
		ImageURL: value(r, "image_url"),
	}
}

type Login struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"min=6"`
}

func ParseLogin(r *http.Request) Login {
	return Login{
		Username: value(r, "username"),
		Password: r.PostFormValue("password"),
	}
}

// Message is the compose form. max counts runes, not bytes.
type Message struct {
	Text string `form:"text" validate:"required,max=140"`
}

func ParseMessage(r *http.Request) Message {
	return Message{Text: value(r, "text")}
}

// Profile is the edit-profile form. Password re-authenticates the change.
type Profile struct {
	Username       string `form:"username"         validate:"required"`
	Email          string `form:"email"            validate:"required,email"`
	Location       string `form:"location"         validate:"max=100"`
	ImageURL       string `form:"image_url"        validate:"omitempty,imageurl"`
	HeaderImageURL string `form:"header_image_url" validate:"omitempty,imageurl"`
	Bio            string `form:"bio"              validate:"max=500"`
	Password       string `form:"password"         validate:"min=6"`
}

func ParseProfile(r *http.Request) Profile {
	return Profile{
		Username:       value(r, "username"),
		Email:          value(r, "email"),
		Location:       value(r, "location"),
		ImageURL:       value(r, "image_url"),
		HeaderImageURL: value(r, "header_image_url"),
		Bio:            value(r, "bio"),
		Password:       r.PostFormValue("password"),
	}
}

// ProfileFrom prefills the edit form from the stored user. The password is
// always left blank.
func ProfileFrom(u *model.User) Profile {
	return Profile{
		Username:       u.Username,
		Email:          u.Email,
		Location:       u.Location,
		ImageURL:       u.ImageURL,
		HeaderImageURL: u.HeaderImageURL,
		Bio:            u.Bio,
	}
}
