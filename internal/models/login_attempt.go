package models

import "time"

// RiskLevel buckets a numeric risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Meets reports whether l is at or above threshold in severity order.
func (l RiskLevel) Meets(threshold RiskLevel) bool {
	return l.rank() >= threshold.rank()
}

func (l RiskLevel) rank() int {
	switch l {
	case RiskLevelCritical:
		return 3
	case RiskLevelHigh:
		return 2
	case RiskLevelMedium:
		return 1
	default:
		return 0
	}
}

// RiskFlags are the boolean signals evaluated for one login attempt.
// They are stored on the attempt record so a signal's novelty can be
// judged against history, not recomputed after the fact.
type RiskFlags struct {
	NewDevice   bool `json:"new_device"`
	NewIP       bool `json:"new_ip"`
	NewLocation bool `json:"new_location"`
	OffHours    bool `json:"off_hours"`
	RapidRepeat bool `json:"rapid_repeat"`
}

// LoginAttempt is the immutable record of a single login attempt.
// AccountID is nil when the supplied username matched no account.
type LoginAttempt struct {
	ID            string    `db:"id"`
	AccountID     *string   `db:"account_id"`
	Username      string    `db:"username"`
	AttemptTime   time.Time `db:"attempt_time"`
	IPAddress     string    `db:"ip_address"`
	UserAgent     string    `db:"user_agent"`
	Location      string    `db:"location"`
	Success       bool      `db:"success"`
	FailureReason *string   `db:"failure_reason"`
	Flags         RiskFlags
	RiskScore     int       `db:"risk_score"`
	RiskLevel     RiskLevel `db:"risk_level"`
}

// LoginHistory aggregates an account's prior attempts for risk evaluation.
// "Known" values come from successful logins only; RecentAttempts counts
// every attempt (success or failure) inside the rapid-repeat window.
type LoginHistory struct {
	KnownIPs       []string
	KnownLocations []string
	ActiveHours    []int // distinct UTC hours of prior successful logins
	SuccessCount   int
	RecentAttempts int
}
