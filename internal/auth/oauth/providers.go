package oauth

import (
	"fmt"
	"strings"

	"github.com/TimurCravtov/CraftHub/internal/auth/domain"
	"github.com/tidwall/gjson"
)

const (
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	githubTokenURL    = "https://github.com/login/oauth/access_token"
	githubUserInfoURL = "https://api.github.com/user"
)

// Google returns the provider configuration for Google sign-in.
func Google(clientID, clientSecret string) ProviderConfig {
	return ProviderConfig{
		Name:         "google",
		Kind:         domain.ProviderGoogle,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     googleTokenURL,
		UserInfoURL:  googleUserInfoURL,
		Scopes:       []string{"openid", "email", "profile"},
		Extract:      ExtractGoogle,
	}
}

// GitHub returns the provider configuration for GitHub sign-in.
func GitHub(clientID, clientSecret string) ProviderConfig {
	return ProviderConfig{
		Name:         "github",
		Kind:         domain.ProviderGitHub,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     githubTokenURL,
		UserInfoURL:  githubUserInfoURL,
		Scopes:       []string{"read:user", "user:email"},
		Extract:      ExtractGitHub,
	}
}

func ExtractGoogle(body []byte) (domain.ExternalIdentity, error) {
	if !gjson.ValidBytes(body) {
		return domain.ExternalIdentity{}, fmt.Errorf("oauth: google user info is not valid json")
	}
	res := gjson.GetManyBytes(body, "id", "name", "email")

	id := domain.ExternalIdentity{
		ProviderID: res[0].String(),
		Name:       res[1].String(),
		Email:      strings.ToLower(res[2].String()),
	}
	if id.ProviderID == "" || id.Email == "" {
		return domain.ExternalIdentity{}, ErrIncompleteProfile
	}
	if id.Name == "" {
		id.Name, _, _ = strings.Cut(id.Email, "@")
	}
	return id, nil
}

// ExtractGitHub reads /user. GitHub omits name and email when the user keeps
// them private, so name falls back to the login and email to the
// no-reply address GitHub assigns every account.
func ExtractGitHub(body []byte) (domain.ExternalIdentity, error) {
	if !gjson.ValidBytes(body) {
		return domain.ExternalIdentity{}, fmt.Errorf("oauth: github user info is not valid json")
	}
	res := gjson.GetManyBytes(body, "id", "login", "name", "email")

	providerID := res[0].String()
	login := res[1].String()
	if providerID == "" || login == "" {
		return domain.ExternalIdentity{}, ErrIncompleteProfile
	}

	name := res[2].String()
	if name == "" {
		name = login
	}
	email := strings.ToLower(res[3].String())
	if email == "" {
		email = fmt.Sprintf("%s+%s@users.noreply.github.com", providerID, login)
	}

	return domain.ExternalIdentity{ProviderID: providerID, Name: name, Email: email}, nil
}
