package config

import "time"

const (
	tokenCheckIntervalVar = "MILITEX_TOKEN_CHECK_INTERVAL"
	coalesceRefreshVar    = "MILITEX_COALESCE_REFRESH"
)

type Session struct {
	file *File
}

var _ SessionConfig = Session{}

func (s Session) GetTokenCheckInterval() time.Duration {
	return GetEnvDuration(tokenCheckIntervalVar, s.file.TokenCheckInterval.Or(5*time.Minute))
}

// GetCoalesceRefresh reports whether concurrent 401s should share one refresh call.
func (s Session) GetCoalesceRefresh() bool {
	return GetEnvBool(coalesceRefreshVar, s.file.CoalesceRefresh)
}
