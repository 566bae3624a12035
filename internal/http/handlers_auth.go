package http

import (
	"net/http"
	"sync/atomic"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/log"
)

const (
	dashboardPath = "/dashboard"

	msgSignedIn   = "¡Sesión iniciada con éxito!"
	msgRegistered = "¡Registro exitoso!"
	msgDemoReady  = "¡Modo demo iniciado con éxito!"
	msgDemoFailed = "No se pudo iniciar el modo de demostración."
)

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	s.writePage(w, r, http.StatusOK, "home.html", struct{ SignedIn bool }{signedIn(r, ws)})
}

func signedIn(r *http.Request, ws *Workspace) bool {
	return ws.Sessions.Session() != nil && ownsSession(r, ws)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	if signedIn(r, ws) {
		redirect(w, r, dashboardPath)
		return
	}
	s.writePage(w, r, http.StatusOK, "login.html", authView{})
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	if signedIn(r, ws) {
		redirect(w, r, dashboardPath)
		return
	}
	s.writePage(w, r, http.StatusOK, "register.html", authView{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	creds, err := ParseCredentials(r)
	if err != nil {
		s.writePage(w, r, http.StatusBadRequest, "login.html", authView{Error: "Formato de solicitud no válido."})
		return
	}

	sess, err := ws.Client.SignIn(r.Context(), creds.Email, creds.Password)
	if err != nil {
		s.authFailed(r, log.OpSignIn, err)
		s.writePage(w, r, statusFor(err), "login.html", authView{Email: creds.Email, Error: userMessage(err)})
		return
	}

	atomic.AddInt64(&s.appMetrics.signIns, 1)
	s.audit.LogAuth(r.Context(), log.OpSignIn, sess.User.ID, sess.User.IsDemo)
	s.startSession(w, r, ws, sess, msgSignedIn)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	creds, err := ParseCredentials(r)
	if err != nil {
		s.writePage(w, r, http.StatusBadRequest, "register.html", authView{Error: "Formato de solicitud no válido."})
		return
	}

	sess, err := ws.Client.SignUp(r.Context(), creds.Email, creds.Password, core.UserMetadata{})
	if err != nil {
		s.authFailed(r, log.OpSignUp, err)
		s.writePage(w, r, statusFor(err), "register.html", authView{Email: creds.Email, Error: userMessage(err)})
		return
	}

	atomic.AddInt64(&s.appMetrics.signUps, 1)
	s.audit.LogAuth(r.Context(), log.OpSignUp, sess.User.ID, false)
	s.startSession(w, r, ws, sess, msgRegistered)
}

// handleDemoLogin signs up a throwaway account flagged as demo and enters
// the dashboard with it.
func (s *Server) handleDemoLogin(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	creds, err := newDemoCredentials()
	if err == nil {
		var sess *core.Session
		sess, err = ws.Client.SignUp(r.Context(), creds.Email, creds.Password, core.UserMetadata{IsDemo: true})
		if err == nil {
			atomic.AddInt64(&s.appMetrics.demoSignUps, 1)
			s.audit.LogAuth(r.Context(), log.OpSignUp, sess.User.ID, true)
			s.startSession(w, r, ws, sess, msgDemoReady)
			return
		}
	}

	s.authFailed(r, log.OpSignUp, err)
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		status = http.StatusInternalServerError
	}
	s.writePage(w, r, status, "login.html", authView{Error: msgDemoFailed})
}

// handleLogout signs the workspace out and returns to the landing page. The
// token cookie is only dropped once the backend accepted the sign-out.
// Requests without the matching token cookie sign nothing out.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	if !ownsSession(r, ws) {
		redirect(w, r, "/")
		return
	}
	user := ws.Sessions.User()
	if err := ws.Dashboard.Logout(r.Context()); err == nil {
		s.clearTokenCookie(w)
		if user != nil {
			s.audit.LogAuth(r.Context(), log.OpSignOut, user.ID, user.IsDemo)
		}
	}
	redirect(w, r, "/")
}

// startSession moves the browser to a new workspace seeded with the fresh
// token. The id used before signing in is discarded.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, ws *Workspace, sess *core.Session, flash string) {
	next := s.workspaces.rotate(r.Context(), ws, sess.AccessToken)
	s.setWorkspaceCookie(w, next.ID)
	s.setTokenCookie(w, sess.AccessToken, sess.ExpiresAt)
	next.SetFlash(flash)
	redirect(w, r, dashboardPath)
}

func (s *Server) authFailed(r *http.Request, operation string, err error) {
	atomic.AddInt64(&s.appMetrics.authFailed, 1)
	s.logger.WarnContext(r.Context(), "Authentication failed",
		log.FieldOperation, operation,
		log.FieldError, err.Error(),
		log.FieldErrorType, errorType(err))
}
