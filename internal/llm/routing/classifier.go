package routing

// Classify maps a Task to one of the four tiers per spec §4.3's rule
// cascade: an explicit override always wins, then long-running/agentic
// operation kinds, then code-shaped work crossing either file or token
// thresholds, then fast read-only tool calls, defaulting to Voice for
// everything else (ordinary user-facing chat).
func Classify(task Task, thresholds Thresholds) Tier {
	if task.TierOverride != nil {
		return *task.TierOverride
	}

	if task.IsLongRunning {
		return TierAgentic
	}
	if _, ok := agenticOperationKinds[task.OperationKind]; ok {
		return TierAgentic
	}

	if _, ok := codeOperationKinds[task.OperationKind]; ok {
		return TierCode
	}
	if task.FileCount >= thresholds.CodeFileThreshold {
		return TierCode
	}
	if thresholds.CodeTokenThreshold > 0 && task.EstimatedTokens >= thresholds.CodeTokenThreshold {
		return TierCode
	}

	if _, ok := fastToolNames[task.ToolName]; ok {
		return TierFast
	}

	return TierVoice
}
