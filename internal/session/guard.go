package session

import "github.com/Bota93/spendesk/internal/core"

// LoginPath is where unauthenticated visitors of protected views are sent.
const LoginPath = "/login"

// Decision is the outcome of guarding a protected view.
type Decision struct {
	Allow    bool
	Redirect string
}

// Guard allows the view when a session exists and redirects to the login
// view otherwise.
func Guard(current *core.Session) Decision {
	if current == nil {
		return Decision{Redirect: LoginPath}
	}
	return Decision{Allow: true}
}
