package social

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
)

// HTTPController serves the browser side of the OAuth flow.
type HTTPController struct {
	authenticator *SocialAuthenticator
	config        HTTPConfig
	logger        identity.Logger
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// AuthorizationPath starts a flow (default: "/oauth2/authorization/:provider").
	AuthorizationPath string

	// CallbackPath receives the provider redirect (default: "/login/oauth2/code/:provider").
	CallbackPath string

	// SuccessRedirect receives the token as a query parameter (default: "/oauth2/redirect").
	SuccessRedirect string

	// FailureRedirect receives error=oauth_failed and a message (default: "/login").
	FailureRedirect string
}

// NewHTTPController creates the OAuth controller.
func NewHTTPController(auth *SocialAuthenticator, cfg HTTPConfig) *HTTPController {
	if cfg.AuthorizationPath == "" {
		cfg.AuthorizationPath = "/oauth2/authorization/:provider"
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = "/login/oauth2/code/:provider"
	}
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/oauth2/redirect"
	}
	if cfg.FailureRedirect == "" {
		cfg.FailureRedirect = "/login"
	}

	return &HTTPController{
		authenticator: auth,
		config:        cfg,
		logger:        auth.logger,
	}
}

// RegisterRoutes mounts the authorization and callback routes.
func (c *HTTPController) RegisterRoutes(router fiber.Router) {
	router.Get(c.config.AuthorizationPath, c.BeginAuth).Name("oauth2.authorization")
	router.Get(c.config.CallbackPath, c.Callback).Name("oauth2.callback")
}

// BeginAuth redirects the browser to the provider consent page.
func (c *HTTPController) BeginAuth(ctx *fiber.Ctx) error {
	redirect, err := c.authenticator.BeginAuth(ctx.UserContext(), ctx.Params("provider"), ctx.Query("redirect_uri"))
	if err != nil {
		return c.fail(ctx, err.Error())
	}
	return ctx.Redirect(redirect.URL, fiber.StatusFound)
}

// Callback completes the flow and hands the token to the frontend.
func (c *HTTPController) Callback(ctx *fiber.Ctx) error {
	provider := ctx.Params("provider")

	if errCode := ctx.Query("error"); errCode != "" {
		message := errCode
		if desc := ctx.Query("error_description"); desc != "" {
			message = desc
		}
		return c.fail(ctx, message)
	}

	code, state := ctx.Query("code"), ctx.Query("state")
	if code == "" || state == "" {
		return c.fail(ctx, "missing code or state")
	}

	result, err := c.authenticator.CompleteAuth(ctx.UserContext(), provider, code, state)
	if err != nil {
		return c.fail(ctx, err.Error())
	}

	c.logger.Info("oauth login completed", "provider", provider, "login", result.Login, "new_identity", result.IsNewIdentity)

	target := result.RedirectURL
	if target == "" {
		target = c.config.SuccessRedirect
	}
	return ctx.Redirect(appendQueryParam(target, "token", result.Token), fiber.StatusFound)
}

func (c *HTTPController) fail(ctx *fiber.Ctx, message string) error {
	c.logger.Warn("oauth login failed", "provider", ctx.Params("provider"), "message", message)
	target := appendQueryParam(c.config.FailureRedirect, "error", "oauth_failed")
	target = appendQueryParam(target, "message", message)
	return ctx.Redirect(target, fiber.StatusFound)
}

func appendQueryParam(rawURL, key, value string) string {
	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		query.Set(key, value)
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
