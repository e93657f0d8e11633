package github

import (
	"strconv"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/social"
)

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// mapProfile falls back to the handle when the account has no display name.
func mapProfile(user *githubUser) *social.SocialProfile {
	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &social.SocialProfile{
		Provider:       identity.ProviderGitHub,
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          user.Email,
		Name:           name,
		Username:       user.Login,
		AvatarURL:      user.AvatarURL,
		ProfileURL:     user.HTMLURL,
		Raw: map[string]any{
			"id":         user.ID,
			"login":      user.Login,
			"name":       user.Name,
			"email":      user.Email,
			"avatar_url": user.AvatarURL,
			"html_url":   user.HTMLURL,
		},
	}
}
