package domain

import (
	"fmt"
	"strings"
)

// Color is one of the colors a digit can carry
type Color string

const (
	ColorGreen  Color = "green"
	ColorRed    Color = "red"
	ColorViolet Color = "violet"
)

// Color sets are returned in this canonical order so that two classifications
// of the same digit compare equal.
var (
	colorsZero  = []Color{ColorRed, ColorViolet}
	colorsFive  = []Color{ColorGreen, ColorViolet}
	colorsGreen = []Color{ColorGreen}
	colorsRed   = []Color{ColorRed}
)

// ColorsFor maps an outcome digit to its color set. Digits outside 0-9 have
// no colors.
func ColorsFor(digit int) []Color {
	var set []Color
	switch digit {
	case 0:
		set = colorsZero
	case 5:
		set = colorsFive
	case 1, 3, 7, 9:
		set = colorsGreen
	case 2, 4, 6, 8:
		set = colorsRed
	default:
		return nil
	}
	out := make([]Color, len(set))
	copy(out, set)
	return out
}

// HasColor reports whether c is part of colors
func HasColor(colors []Color, c Color) bool {
	for _, have := range colors {
		if have == c {
			return true
		}
	}
	return false
}

// ParseColor validates a color name
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ColorGreen, ColorRed, ColorViolet:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown color %q", ErrInvalidSelection, s)
}
