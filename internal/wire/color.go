package wire

import (
	"fmt"
	"regexp"
)

// DefaultRoleColor is the color members fall back to when neither a
// customization nor a colored role applies.
const DefaultRoleColor = "#ffffff"

var roleColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ValidRoleColor reports whether value is a #RRGGBB hex color.
func ValidRoleColor(value string) bool {
	return roleColorPattern.MatchString(value)
}

// colorStrategy yields a color for the member or "" to defer to the next
// strategy in the chain.
type colorStrategy func(custom string, topRoleColor uint32) string

var colorStrategies = []colorStrategy{
	customizationColor,
	platformRoleColor,
	fallbackColor,
}

func customizationColor(custom string, _ uint32) string {
	if ValidRoleColor(custom) {
		return custom
	}
	return ""
}

func platformRoleColor(_ string, topRoleColor uint32) string {
	if topRoleColor != 0 {
		return fmt.Sprintf("#%06x", topRoleColor)
	}
	return ""
}

func fallbackColor(string, uint32) string {
	return DefaultRoleColor
}

// ResolveColor picks the member's wire color: a valid stored customization
// wins, then a colored top role, then the white fallback. Invalid stored
// values are treated as absent rather than rejected.
func ResolveColor(custom string, topRoleColor uint32) string {
	for _, strategy := range colorStrategies {
		if color := strategy(custom, topRoleColor); color != "" {
			return color
		}
	}
	return DefaultRoleColor
}
