package auth

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/foyerhq/foyer/internal/apperror"
)

// Handler handles HTTP requests for authentication (login, register,
// logout). Handlers are thin: they bind the request, call the service, and
// render the response. No business logic lives here.
//
// The forms are deliberately bare inline HTML -- dashboard chrome and
// styling live with the dashboards, not the login layer.
type Handler struct {
	service AuthService
	appName string
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService, appName string) *Handler {
	return &Handler{service: service, appName: appName}
}

// LoginForm renders the login page (GET /login).
func (h *Handler) LoginForm(c echo.Context) error {
	// Already signed in (possibly via a sibling app) -- go home.
	if h.service.IsAuthenticated(c) {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return h.renderLogin(c, "", "", "")
}

// Login processes the login form submission (POST /login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	message, err := h.service.Login(c, LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		appErr, ok := err.(*apperror.AppError)
		if ok && appErr.Code == http.StatusUnauthorized {
			// Re-render the form with the generic message.
			return h.renderLogin(c, req.Username, appErr.Message, "")
		}
		return err
	}

	return h.renderLogin(c, "", "", message)
}

// RegisterForm renders the registration page (GET /register).
func (h *Handler) RegisterForm(c echo.Context) error {
	if h.service.IsAuthenticated(c) {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return h.renderRegister(c, &RegisterRequest{}, "")
}

// Register processes the registration form submission (POST /register).
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if msg := validateRegisterRequest(&req); msg != "" {
		return h.renderRegister(c, &req, msg)
	}

	_, err := h.service.Register(c.Request().Context(), RegisterInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		if appErr, ok := err.(*apperror.AppError); ok && appErr.Code < http.StatusInternalServerError {
			return h.renderRegister(c, &req, appErr.Message)
		}
		return err
	}

	// Auto-login after successful registration.
	if _, err := h.service.Login(c, LoginInput{
		Username: req.Username,
		Password: req.Password,
	}); err != nil {
		// Registration succeeded but auto-login failed -- send them to
		// the login form rather than surfacing a confusing error.
		return c.Redirect(http.StatusSeeOther, "/login")
	}

	return c.Redirect(http.StatusSeeOther, "/")
}

// Logout destroys the session and clears the cookie (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	if err := h.service.Logout(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

// --- Rendering helpers ---

func (h *Handler) renderLogin(c echo.Context, username, errMsg, successMsg string) error {
	var banner string
	if errMsg != "" {
		banner = fmt.Sprintf(`<p class="error">%s</p>`, html.EscapeString(errMsg))
	}
	if successMsg != "" {
		banner = fmt.Sprintf(`<p class="success">%s</p>`, html.EscapeString(successMsg))
	}

	body := fmt.Sprintf(`<h1>%s &mdash; sign in</h1>%s
<form method="post" action="/login">
  <label>Username <input name="username" value="%s" autofocus></label>
  <label>Password <input name="password" type="password"></label>
  <button type="submit">Sign in</button>
</form>
<p><a href="/register">Create an account</a></p>`,
		html.EscapeString(h.appName), banner, html.EscapeString(username))

	return c.HTML(http.StatusOK, page("Sign in", body))
}

func (h *Handler) renderRegister(c echo.Context, req *RegisterRequest, errMsg string) error {
	var banner string
	if errMsg != "" {
		banner = fmt.Sprintf(`<p class="error">%s</p>`, html.EscapeString(errMsg))
	}

	body := fmt.Sprintf(`<h1>%s &mdash; create account</h1>%s
<form method="post" action="/register">
  <label>Username <input name="username" value="%s"></label>
  <label>Display name <input name="display_name" value="%s"></label>
  <label>Email <input name="email" type="email" value="%s"></label>
  <label>Password <input name="password" type="password"></label>
  <label>Confirm password <input name="confirm" type="password"></label>
  <button type="submit">Register</button>
</form>
<p><a href="/login">Already have an account?</a></p>`,
		html.EscapeString(h.appName), banner,
		html.EscapeString(req.Username),
		html.EscapeString(req.DisplayName),
		html.EscapeString(req.Email))

	return c.HTML(http.StatusOK, page("Register", body))
}

// page wraps body in the minimal shared document shell.
func page(title, body string) string {
	return fmt.Sprintf(`<!doctype html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body>%s</body></html>`, html.EscapeString(title), body)
}

// --- Validation helpers ---

// validateRegisterRequest performs basic server-side validation on the
// registration form. Returns an error message or empty string.
func validateRegisterRequest(req *RegisterRequest) string {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return "username is required"
	}
	if len(req.Username) < 3 {
		return "username must be at least 3 characters"
	}
	if len(req.Username) > 32 {
		return "username must be at most 32 characters"
	}
	for _, r := range req.Username {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return "username may only contain lowercase letters, digits, '_' and '-'"
		}
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return "display name is required"
	}
	if len(req.DisplayName) > 100 {
		return "display name must be at most 100 characters"
	}
	if req.Email == "" {
		return "email is required"
	}
	if !strings.Contains(req.Email, "@") {
		return "email is not valid"
	}
	if req.Password == "" {
		return "password is required"
	}
	if len(req.Password) < 8 {
		return "password must be at least 8 characters"
	}
	if len(req.Password) > 128 {
		return "password must be at most 128 characters"
	}
	if req.Confirm != req.Password {
		return "passwords do not match"
	}
	return ""
}
