// Package risk scores login attempts from weak signals. Evaluate is a
// pure function over the current attempt, the account's login history,
// and the device record, so it can run synchronously in the login path
// and be tested without any store.
package risk

import (
	"time"

	"github.com/palletline/gatehouse/internal/models"
)

// Policy fixes the signal weights and bucket thresholds. Weights are
// non-negative, so the score is monotonic non-decreasing in the number
// of true signals.
type Policy struct {
	WeightNewDevice   int
	WeightNewIP       int
	WeightNewLocation int
	WeightOffHours    int
	WeightRapidRepeat int

	// Bucket lower bounds: score < MediumAt is Low, < HighAt is Medium,
	// < CriticalAt is High, else Critical.
	MediumAt   int
	HighAt     int
	CriticalAt int

	// RapidThreshold is the attempt count inside the rolling window at
	// which the rapid-repeat signal fires (current attempt included).
	RapidThreshold int

	// Workday hours (UTC) used as the off-hours baseline until an
	// account has at least MinHistoryForHours successful logins of its
	// own to judge against.
	WorkdayStartHour   int
	WorkdayEndHour     int
	MinHistoryForHours int
}

// DefaultPolicy returns the production weights.
func DefaultPolicy() Policy {
	return Policy{
		WeightNewDevice:    25,
		WeightNewIP:        15,
		WeightNewLocation:  20,
		WeightOffHours:     10,
		WeightRapidRepeat:  20,
		MediumAt:           25,
		HighAt:             50,
		CriticalAt:         75,
		RapidThreshold:     3,
		WorkdayStartHour:   6,
		WorkdayEndHour:     22,
		MinHistoryForHours: 5,
	}
}

// Attempt is the current login attempt as seen by the engine.
type Attempt struct {
	IP       string
	Location string
	At       time.Time
}

// Assessment is the engine's verdict for one attempt.
type Assessment struct {
	Flags models.RiskFlags
	Score int
	Level models.RiskLevel
}

// Evaluate derives the signal flags and scores the attempt. History must
// be queried before the attempt is recorded: a signal is "new" only
// relative to what came before. A blocked device forces Critical no
// matter what the other signals say.
func (p Policy) Evaluate(attempt Attempt, hist models.LoginHistory, device *models.TrustedDevice) Assessment {
	flags := models.RiskFlags{
		NewDevice:   device == nil,
		NewIP:       !contains(hist.KnownIPs, attempt.IP),
		NewLocation: !contains(hist.KnownLocations, attempt.Location),
		OffHours:    p.offHours(attempt.At, hist),
		RapidRepeat: hist.RecentAttempts+1 > p.RapidThreshold,
	}

	if device != nil && device.Blocked {
		return Assessment{Flags: flags, Score: 100, Level: models.RiskLevelCritical}
	}

	score := 0
	if flags.NewDevice {
		score += p.WeightNewDevice
	}
	if flags.NewIP {
		score += p.WeightNewIP
	}
	if flags.NewLocation {
		score += p.WeightNewLocation
	}
	if flags.OffHours {
		score += p.WeightOffHours
	}
	if flags.RapidRepeat {
		score += p.WeightRapidRepeat
	}
	if score > 100 {
		score = 100
	}

	return Assessment{Flags: flags, Score: score, Level: p.bucket(score)}
}

func (p Policy) bucket(score int) models.RiskLevel {
	switch {
	case score < p.MediumAt:
		return models.RiskLevelLow
	case score < p.HighAt:
		return models.RiskLevelMedium
	case score < p.CriticalAt:
		return models.RiskLevelHigh
	default:
		return models.RiskLevelCritical
	}
}

// offHours checks the attempt hour against the account's own successful
// login hours once enough history exists, otherwise against the
// configured workday window.
func (p Policy) offHours(at time.Time, hist models.LoginHistory) bool {
	hour := at.UTC().Hour()
	if hist.SuccessCount >= p.MinHistoryForHours && len(hist.ActiveHours) > 0 {
		for _, h := range hist.ActiveHours {
			if h == hour {
				return false
			}
		}
		return true
	}
	return hour < p.WorkdayStartHour || hour >= p.WorkdayEndHour
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
