package identity

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// PrincipalLocalsKey is the fiber locals key holding the request Principal.
const PrincipalLocalsKey = "principal"

// HTTPRoutes holds the paths served by HTTPController, relative to the
// router it is registered on.
type HTTPRoutes struct {
	Signup    string
	Signin    string
	SaveRoles string
	ViewRoles string
}

// DefaultHTTPRoutes mirrors the public v1 API.
func DefaultHTTPRoutes() HTTPRoutes {
	return HTTPRoutes{
		Signup:    "/api/v1/auth/signup",
		Signin:    "/api/v1/auth/signin",
		SaveRoles: "/api/v1/user-roles/save",
		ViewRoles: "/api/v1/user-roles/:login",
	}
}

// HTTPController exposes signup, signin and role management over fiber.
type HTTPController struct {
	Debug  bool
	Routes HTTPRoutes
	Logger Logger

	signup *SignupHandler
	signin *SigninHandler
	assign *AssignRolesHandler
	view   *ViewRolesHandler
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithHTTPRoutes(routes HTTPRoutes) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Routes = routes
		return c
	}
}

func WithHTTPLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		_, c.Logger = ResolveLogger("identity.http", nil, logger)
		return c
	}
}

func WithHTTPDebug(debug bool) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Debug = debug
		return c
	}
}

// NewHTTPController wires the command and query handlers behind the v1 routes.
func NewHTTPController(auth *Authenticator, roles *RoleService, opts ...HTTPControllerOption) *HTTPController {
	_, logger := ResolveLogger("identity.http", nil, nil)
	c := &HTTPController{
		Routes: DefaultHTTPRoutes(),
		Logger: logger,
		signup: NewSignupHandler(auth),
		signin: NewSigninHandler(auth),
		assign: NewAssignRolesHandler(roles),
		view:   NewViewRolesHandler(roles),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

// RegisterRoutes mounts the routes on router. The protect handlers guard
// the role endpoints and must leave a Principal behind.
func (h *HTTPController) RegisterRoutes(router fiber.Router, protect ...fiber.Handler) {
	router.Put(h.Routes.Signup, h.Signup).Name("auth.signup")
	router.Post(h.Routes.Signin, h.Signin).Name("auth.signin")

	router.Put(h.Routes.SaveRoles, chain(protect, h.SaveRoles)...).Name("user-roles.save")
	router.Get(h.Routes.ViewRoles, chain(protect, h.ViewRoles)...).Name("user-roles.get")
}

func chain(protect []fiber.Handler, handler fiber.Handler) []fiber.Handler {
	return append(slices.Clone(protect), handler)
}

func (h *HTTPController) Signup(c *fiber.Ctx) error {
	var msg SignupMessage
	if err := h.bind(c, &msg); err != nil {
		return h.HandleError(c, err)
	}

	if err := h.signup.Execute(c.UserContext(), msg); err != nil {
		return h.HandleError(c, err)
	}

	return c.SendStatus(fiber.StatusCreated)
}

func (h *HTTPController) Signin(c *fiber.Ctx) error {
	var msg SigninMessage
	if err := h.bind(c, &msg); err != nil {
		return h.HandleError(c, err)
	}

	result, err := h.signin.Query(c.UserContext(), msg)
	if err != nil {
		return h.HandleError(c, err)
	}

	return c.JSON(result)
}

// SaveRoles replaces the roles of an identity. Admin only.
func (h *HTTPController) SaveRoles(c *fiber.Ctx) error {
	principal, err := RequestPrincipal(c)
	if err != nil {
		return h.HandleError(c, err)
	}

	if err := AuthorizeAuthority(principal, AdminAuthority); err != nil {
		return h.HandleError(c, err)
	}

	var msg AssignRolesMessage
	if err := h.bind(c, &msg); err != nil {
		return h.HandleError(c, err)
	}

	ctx := WithPrincipal(c.UserContext(), principal)
	if err := h.assign.Execute(ctx, msg); err != nil {
		return h.HandleError(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

// ViewRoles lists the role types of :login for the owner or an admin.
func (h *HTTPController) ViewRoles(c *fiber.Ctx) error {
	principal, err := RequestPrincipal(c)
	if err != nil {
		return h.HandleError(c, err)
	}

	roles, err := h.view.Query(c.UserContext(), ViewRolesQuery{
		Requester: principal,
		Login:     c.Params("login"),
	})
	if err != nil {
		return h.HandleError(c, err)
	}

	return c.JSON(roles)
}

func (h *HTTPController) bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "malformed request body").
			WithCode(errors.CodeBadRequest)
	}

	if h.Debug {
		h.Logger.Debug("request payload", "path", c.Path(), "payload", print.MaybePrettyJSON(out))
	}
	return nil
}

// HandleError renders err as a go-errors response with the matching status.
func (h *HTTPController) HandleError(c *fiber.Ctx, err error) error {
	return renderError(c, h.Logger, h.Debug, err)
}

// RequestPrincipal returns the Principal left by the bearer middleware.
func RequestPrincipal(c *fiber.Ctx) (Principal, error) {
	if p, ok := c.Locals(PrincipalLocalsKey).(Principal); ok && !p.IsZero() {
		return p, nil
	}
	if p, ok := PrincipalFromContext(c.UserContext()); ok {
		return p, nil
	}
	return Principal{}, raise(ErrTokenMalformed, nil, map[string]any{"reason": "missing principal"})
}

// NewErrorHandler returns a fiber.ErrorHandler that renders go-errors responses.
func NewErrorHandler(logger Logger, debug bool) fiber.ErrorHandler {
	_, logger = ResolveLogger("identity.http", nil, logger)
	return func(c *fiber.Ctx, err error) error {
		return renderError(c, logger, debug, err)
	}
}

// StatusFor maps an error to its HTTP status by category.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return fiber.StatusInternalServerError
	}

	switch richErr.Category {
	case errors.CategoryNotFound:
		return fiber.StatusNotFound
	case errors.CategoryConflict:
		return fiber.StatusConflict
	case errors.CategoryAuth:
		return fiber.StatusUnauthorized
	case errors.CategoryAuthz:
		return fiber.StatusForbidden
	case errors.CategoryValidation, errors.CategoryBadInput:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func renderError(c *fiber.Ctx, logger Logger, debug bool, err error) error {
	status := StatusFor(err)

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		richErr = richErr.Clone()
	} else {
		message := "An unexpected server error occurred"
		category := errors.CategoryInternal
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			message = fiberErr.Message
			category = errors.HTTPStatusToCategory(fiberErr.Code)
		}
		richErr = errors.Wrap(err, category, message)
	}
	richErr.Code = status

	if status >= fiber.StatusInternalServerError {
		logger.Error("request failed",
			"path", c.Path(),
			"error", richErr.Message,
			"category", richErr.Category,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	} else if debug {
		logger.Debug("request rejected",
			"path", c.Path(),
			"error", richErr.Message,
			"category", richErr.Category,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	}

	// internal details stay in the logs
	if status >= fiber.StatusInternalServerError && !debug {
		richErr.Source = nil
		richErr.Metadata = nil
		if !strings.EqualFold(richErr.TextCode, TextCodeConfiguration) {
			richErr.Message = "An unexpected server error occurred"
		}
	}

	return c.Status(status).JSON(richErr.ToErrorResponse(debug, nil))
}
