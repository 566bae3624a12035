package http

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/dashboard"
	"github.com/Bota93/spendesk/internal/log"
)

const (
	workspaceCookie = "spendesk_ws"
	tokenCookie     = "spendesk_token"
)

// statusFor maps a domain error to the HTTP status sent to the browser.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidCredentials),
		errors.Is(err, core.ErrUnauthenticated),
		errors.Is(err, dashboard.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrEmailTaken),
		errors.Is(err, dashboard.ErrSubmitInProgress):
		return http.StatusConflict
	case core.IsValidationError(err), errors.Is(err, errInvalidID):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrForbidden):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorType classifies err for the error_type log field.
func errorType(err error) string {
	switch statusFor(err) {
	case http.StatusUnauthorized:
		return log.ErrorTypeAuth
	case http.StatusConflict:
		return log.ErrorTypeConflict
	case http.StatusUnprocessableEntity:
		return log.ErrorTypeValidation
	case http.StatusNotFound:
		return log.ErrorTypeNotFound
	default:
		return log.ErrorTypeInternal
	}
}

var userMessages = []struct {
	err error
	msg string
}{
	{core.ErrInvalidCredentials, "Correo o contraseña incorrectos."},
	{core.ErrEmailTaken, "Ya existe una cuenta con ese correo."},
	{core.ErrWeakPassword, "La contraseña debe tener al menos 6 caracteres."},
	{core.ErrInvalidEmail, "El correo electrónico no es válido."},
	{core.ErrEmptyDescription, "El concepto es obligatorio."},
	{core.ErrDescriptionTooLong, "El concepto no puede superar los 200 caracteres."},
	{core.ErrInvalidAmount, "La cantidad no es válida."},
	{core.ErrInvalidKind, "Tipo de movimiento no válido."},
	{core.ErrInvalidCategory, "Categoría no válida."},
	{core.ErrInvalidDate, "La fecha no es válida."},
	{core.ErrNotFound, "El movimiento no existe."},
	{core.ErrUnauthenticated, "Tu sesión ha caducado. Vuelve a iniciar sesión."},
	{dashboard.ErrNoSession, "Tu sesión ha caducado. Vuelve a iniciar sesión."},
	{dashboard.ErrSubmitInProgress, "Ya se está guardando el movimiento."},
	{errInvalidID, "Movimiento no válido."},
}

// userMessage is the Spanish text shown for err.
func userMessage(err error) string {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Ha ocurrido un error. Inténtalo de nuevo."
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect sends the browser to location: through HX-Redirect for htmx
// requests, 303 See Other otherwise.
func redirect(w http.ResponseWriter, r *http.Request, location string) {
	if isHTMX(r) {
		NewReply().Redirect(location).Write(w)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (s *Server) setTokenCookie(w http.ResponseWriter, token string, expires time.Time) {
	c := &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expires.IsZero() {
		c.Expires = expires
	}
	http.SetCookie(w, c)
}

func (s *Server) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) setWorkspaceCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     workspaceCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// ownsSession reports whether the request carries the token the workspace is
// signed in with. The workspace cookie alone never grants a session.
func ownsSession(r *http.Request, ws *Workspace) bool {
	token := cookieValue(r, tokenCookie)
	current := ws.Client.AccessToken()
	return token != "" && current != "" && subtle.ConstantTimeCompare([]byte(token), []byte(current)) == 1
}

// newDemoCredentials returns a throwaway address and password for a demo
// account.
func newDemoCredentials() (Credentials, error) {
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		return Credentials{}, fmt.Errorf("generate demo password: %w", err)
	}
	return Credentials{
		Email:    fmt.Sprintf("demo-%s@example.com", uuid.NewString()),
		Password: hex.EncodeToString(secret),
	}, nil
}
