package logging

import "strings"

// MaskSecret returns a display-safe form of an authentication token:
// the first and last four characters with the middle elided. Short
// secrets mask entirely so nothing useful leaks into logs or UI labels.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 12 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
