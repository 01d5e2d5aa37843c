// Package participant describes the identity of one observer deployment. The
// same binary runs for every participant; only these environment-supplied
// values differ between instances.
package participant

import "strings"

// Context carries a participant's display identity and routing name.
type Context struct {
	Name        string
	Color       string
	Role        string
	LogoInitial string
}

// New builds a participant context, deriving the logo initial from the name.
func New(name, color, role string) Context {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Observer"
	}
	initial := strings.ToUpper(name[:1])
	return Context{
		Name:        name,
		Color:       color,
		Role:        role,
		LogoInitial: initial,
	}
}

// SubscriptionName derives the bus queue suffix for this participant:
// display name lowercased with spaces removed, so "Hargreaves Lansdown"
// listens on its own trade.settled queue as "hargreaveslansdown".
func (c Context) SubscriptionName() string {
	return strings.ToLower(strings.ReplaceAll(c.Name, " ", ""))
}
