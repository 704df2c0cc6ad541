package util

import "strings"

// NormalizeEmail lowercases and trims an email address so lookups by
// natural key are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips common separators so the same number always maps
// to the same stored value.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	for _, sep := range []string{" ", "-", "(", ")"} {
		phone = strings.ReplaceAll(phone, sep, "")
	}
	return phone
}
