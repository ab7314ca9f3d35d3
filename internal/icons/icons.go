// Package icons validates Font Awesome icon references.
package icons

import "regexp"

const (
	DefaultEnemy  = "fa-solid fa-skull"
	DefaultItem   = "fa-solid fa-box"
	DefaultPlayer = "fa-solid fa-user"
)

var iconRE = regexp.MustCompile(`^fa-(solid|regular|brands) fa-[a-z0-9]+(-[a-z0-9]+)*$`)

// Valid reports whether icon is a well-formed reference.
func Valid(icon string) bool {
	return iconRE.MatchString(icon)
}

// Or returns icon when it is valid and fallback otherwise.
func Or(icon, fallback string) string {
	if Valid(icon) {
		return icon
	}
	return fallback
}
