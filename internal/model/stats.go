package model

type UserStats struct {
	Total             int
	PendingSignatures int
	Signed            int
}

func ComputeUserStats(agreements []Agreement) UserStats {
	stats := UserStats{Total: len(agreements)}
	for _, agreement := range agreements {
		switch agreement.Status {
		case StatusPending:
			stats.PendingSignatures++
		case StatusSigned:
			stats.Signed++
		}
	}
	return stats
}
