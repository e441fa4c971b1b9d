package logger

import "strings"

// RedactUsername masks a platform username for safe logging.
// "sarah.travels" → "sa***"
// Short usernames (≤2 chars) are fully masked: "ab" → "***"
func RedactUsername(username string) string {
	u := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if len(u) > 2 {
		return u[:2] + "***"
	}
	return "***"
}
