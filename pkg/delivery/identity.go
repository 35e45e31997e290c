package delivery

import "golang.org/x/text/cases"

// Identity is a case-insensitive player key derived from a display name.
type Identity string

// IdentityOf folds name so that names differing only by letter case collide.
func IdentityOf(name string) Identity {
	// a Caser is stateful, never share one between goroutines
	return Identity(cases.Fold().String(name))
}

func (id Identity) String() string { return string(id) }
