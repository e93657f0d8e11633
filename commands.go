package identity

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
)

const (
	MessageTypeSignup      = "identity.signup"
	MessageTypeSignin      = "identity.signin"
	MessageTypeAssignRoles = "identity.roles.assign"
	MessageTypeViewRoles   = "identity.roles.view"
)

var (
	_ command.Message = SignupMessage{}
	_ command.Message = SigninMessage{}
	_ command.Message = AssignRolesMessage{}
	_ command.Message = ViewRolesQuery{}

	_ command.Commander[SignupMessage]              = (*SignupHandler)(nil)
	_ command.Querier[SigninMessage, *SigninResult] = (*SigninHandler)(nil)
	_ command.Commander[AssignRolesMessage]         = (*AssignRolesHandler)(nil)
	_ command.Querier[ViewRolesQuery, []RoleType]   = (*ViewRolesHandler)(nil)
)

// SignupMessage registers a local identity.
type SignupMessage struct {
	Login    string `json:"login" example:"testuser"`
	Email    string `json:"email" example:"test@example.com"`
	Password string `json:"password" example:"password123"`
}

func (m SignupMessage) Type() string { return MessageTypeSignup }

func (m SignupMessage) Validate() error {
	m.Login = strings.TrimSpace(m.Login)
	m.Email = strings.TrimSpace(m.Email)
	return validateMessage("invalid signup request", validation.ValidateStruct(&m,
		validation.Field(&m.Login, validation.Required, validation.Length(3, 50)),
		validation.Field(&m.Email, validation.Required, is.EmailFormat),
		validation.Field(&m.Password, validation.Required, validation.Length(6, 100)),
	))
}

// SigninMessage authenticates a local identity.
type SigninMessage struct {
	Login    string `json:"login" example:"testuser"`
	Password string `json:"password" example:"password123"`
}

func (m SigninMessage) Type() string { return MessageTypeSignin }

func (m SigninMessage) Validate() error {
	m.Login = strings.TrimSpace(m.Login)
	return validateMessage("invalid signin request", validation.ValidateStruct(&m,
		validation.Field(&m.Login, validation.Required),
		validation.Field(&m.Password, validation.Required),
	))
}

// AssignRolesMessage replaces the role set of Login with Roles.
type AssignRolesMessage struct {
	Login string   `json:"login" example:"testuser"`
	Roles []string `json:"roles" example:"USER,ADMIN"`
}

func (m AssignRolesMessage) Type() string { return MessageTypeAssignRoles }

func (m AssignRolesMessage) Validate() error {
	m.Login = strings.TrimSpace(m.Login)
	return validateMessage("invalid roles request", validation.ValidateStruct(&m,
		validation.Field(&m.Login, validation.Required),
		validation.Field(&m.Roles, validation.Required, validation.Each(validation.Required)),
	))
}

// ViewRolesQuery asks for the roles of Login on behalf of Requester.
type ViewRolesQuery struct {
	Requester Principal `json:"-"`
	Login     string    `json:"login"`
}

func (m ViewRolesQuery) Type() string { return MessageTypeViewRoles }

func (m ViewRolesQuery) Validate() error {
	m.Login = strings.TrimSpace(m.Login)
	return validateMessage("invalid roles query", validation.ValidateStruct(&m,
		validation.Field(&m.Login, validation.Required),
	))
}

func validateMessage(message string, err error) error {
	if err == nil {
		return nil
	}
	return errors.FromOzzoValidation(err, message)
}

func cancelled(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.CategoryOperation, "context cancelled during "+op)
	default:
		return nil
	}
}

// SignupHandler executes SignupMessage.
type SignupHandler struct {
	auth *Authenticator
}

func NewSignupHandler(auth *Authenticator) *SignupHandler {
	return &SignupHandler{auth: auth}
}

func (h *SignupHandler) Execute(ctx context.Context, msg SignupMessage) error {
	if err := cancelled(ctx, "signup"); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := h.auth.Signup(ctx, msg.Login, msg.Email, msg.Password)
	return err
}

// SigninHandler answers SigninMessage with a signed token.
type SigninHandler struct {
	auth *Authenticator
}

func NewSigninHandler(auth *Authenticator) *SigninHandler {
	return &SigninHandler{auth: auth}
}

func (h *SigninHandler) Query(ctx context.Context, msg SigninMessage) (*SigninResult, error) {
	if err := cancelled(ctx, "signin"); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return h.auth.Signin(ctx, msg.Login, msg.Password)
}

// AssignRolesHandler executes AssignRolesMessage. Callers are expected to
// have checked the admin authority before dispatching.
type AssignRolesHandler struct {
	roles *RoleService
}

func NewAssignRolesHandler(roles *RoleService) *AssignRolesHandler {
	return &AssignRolesHandler{roles: roles}
}

func (h *AssignRolesHandler) Execute(ctx context.Context, msg AssignRolesMessage) error {
	if err := cancelled(ctx, "role assignment"); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	roles, err := ParseRoleTypes(msg.Roles)
	if err != nil {
		return err
	}
	return h.roles.Assign(ctx, strings.TrimSpace(msg.Login), roles)
}

// ViewRolesHandler answers ViewRolesQuery after the guard admits the requester.
type ViewRolesHandler struct {
	roles *RoleService
}

func NewViewRolesHandler(roles *RoleService) *ViewRolesHandler {
	return &ViewRolesHandler{roles: roles}
}

func (h *ViewRolesHandler) Query(ctx context.Context, msg ViewRolesQuery) ([]RoleType, error) {
	if err := cancelled(ctx, "role lookup"); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return h.roles.ViewRoles(ctx, msg.Requester, strings.TrimSpace(msg.Login))
}
