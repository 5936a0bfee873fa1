package moderation

const (
	kickMinScore = 85
	muteMinScore = 70
)

// Decide is the escalation ladder: severity picks the row, the number of prior
// warnings picks the rung.
//
//	SAFE        -> ALLOW
//	SUSPICIOUS  -> WARN (0 warnings), DELETE (1), MUTE (2+)
//	DANGEROUS   -> KICK (score >= 85 and 2+ warnings), MUTE (score >= 70), DELETE
func Decide(score int, level RiskLevel, warningCount int) Action {
	switch level {
	case LevelSafe:
		return ActionAllow

	case LevelSuspicious:
		switch {
		case warningCount <= 0:
			return ActionWarn
		case warningCount == 1:
			return ActionDelete
		default:
			return ActionMute
		}

	case LevelDangerous:
		switch {
		case score >= kickMinScore && warningCount >= 2:
			return ActionKick
		case score >= muteMinScore:
			return ActionMute
		default:
			return ActionDelete
		}
	}

	return ActionWarn
}
