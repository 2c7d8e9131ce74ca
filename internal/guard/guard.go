// Package guard turns a session snapshot and a static requirement into a
// render decision. Guards never mutate session state.
package guard

import (
	"github.com/hongminglow/rdbs-admin-be/internal/authz"
	"github.com/hongminglow/rdbs-admin-be/internal/session"
)

// PageOutcome is the decision of a full-page guard.
type PageOutcome int

const (
	// PageWaiting renders the waiting indicator while the session resolves.
	PageWaiting PageOutcome = iota
	// PageRedirect navigates to the login surface; a waiting indicator is
	// shown until navigation completes.
	PageRedirect
	// PageContent renders the protected page.
	PageContent
)

func (o PageOutcome) String() string {
	switch o {
	case PageWaiting:
		return "waiting"
	case PageRedirect:
		return "redirect"
	case PageContent:
		return "content"
	default:
		return "unknown"
	}
}

// Page decides a full-page guard.
func Page(s session.Snapshot) PageOutcome {
	switch s.Status {
	case session.StatusAuthenticated:
		if s.User == nil {
			return PageRedirect
		}
		return PageContent
	case session.StatusUnauthenticated:
		return PageRedirect
	default:
		return PageWaiting
	}
}

// InlineOutcome is the decision of an inline guard.
type InlineOutcome int

const (
	InlineNothing InlineOutcome = iota
	InlineFallback
	InlineChildren
)

func (o InlineOutcome) String() string {
	switch o {
	case InlineNothing:
		return "nothing"
	case InlineFallback:
		return "fallback"
	case InlineChildren:
		return "children"
	default:
		return "unknown"
	}
}

// Inline gates protected children on a capability requirement.
type Inline struct {
	Requirement  authz.Requirement
	ShowFallback bool
}

// Decide evaluates the guard for s.
func (g Inline) Decide(s session.Snapshot) InlineOutcome {
	if authz.Allows(s, g.Requirement) {
		return InlineChildren
	}
	if g.ShowFallback {
		return InlineFallback
	}
	return InlineNothing
}
