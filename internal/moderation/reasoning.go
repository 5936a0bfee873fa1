package moderation

import (
	"fmt"
	"strings"
)

// Explain renders a human-readable summary of a classification. The text is
// for people only and is never parsed back.
func Explain(score int, level RiskLevel, categories []Category, warningCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk assessment: %d/100 (%s). ", score, level)

	if len(categories) == 0 {
		b.WriteString("No violations detected. Message appears safe.")
		return b.String()
	}

	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	fmt.Fprintf(&b, "Detected: %s. ", strings.Join(names, ", "))

	if warningCount > 0 {
		fmt.Fprintf(&b, "User has %d previous warning(s). ", warningCount)
	}

	switch level {
	case LevelSuspicious:
		b.WriteString("Monitoring user activity. Warning issued for borderline content.")
	case LevelDangerous:
		b.WriteString("High confidence violation detected. Immediate action required to protect community.")
	}

	return strings.TrimRight(b.String(), " ")
}
