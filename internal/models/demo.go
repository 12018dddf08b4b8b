package models

import "time"

// DemoStatus — состояние демо-сессии.
type DemoStatus string

const (
	DemoStatusActive    DemoStatus = "ACTIVE"
	DemoStatusExpired   DemoStatus = "EXPIRED"
	DemoStatusConverted DemoStatus = "CONVERTED"
	DemoStatusAbandoned DemoStatus = "ABANDONED"
)

type demoTransition struct {
	From DemoStatus
	To   DemoStatus
}

var demoTransitions = map[demoTransition]bool{
	{DemoStatusActive, DemoStatusExpired}:    true,
	{DemoStatusActive, DemoStatusConverted}:  true,
	{DemoStatusActive, DemoStatusAbandoned}:  true,
	{DemoStatusExpired, DemoStatusConverted}: true, // оплата после окончания пробного периода
}

// CanTransitionDemo проверяет допустимость перехода между состояниями демо-сессии.
func CanTransitionDemo(from, to DemoStatus) bool {
	return demoTransitions[demoTransition{from, to}]
}

// RestrictionType — причина отказа в доступе к функции.
type RestrictionType string

const (
	RestrictionTimeLimit     RestrictionType = "TIME_LIMIT"
	RestrictionFeatureLocked RestrictionType = "FEATURE_LOCKED"
)

// FeatureAll — подстановочный элемент списка разрешённых функций.
const FeatureAll = "all"

// Restriction — зафиксированное ограничение демо-доступа.
type Restriction struct {
	Type       RestrictionType `json:"type"`
	Feature    string          `json:"feature"`
	Message    string          `json:"message,omitempty"`
	UpgradeURL string          `json:"upgrade_url,omitempty"`
	HitAt      time.Time       `json:"hit_at"`
}

// DemoSession — ограниченная по времени и функциям пробная сессия.
//
// Инвариант: у одной учётной записи не более одной сессии в состоянии ACTIVE.
type DemoSession struct {
	ID               string        `json:"id"`
	IdentityID       string        `json:"identity_id"`
	Token            string        `json:"token"`
	Tier             Tier          `json:"tier"`
	Status           DemoStatus    `json:"status"`
	AllowedFeatures  []string      `json:"allowed_features"`
	FeaturesAccessed []string      `json:"features_accessed"`
	RestrictionsHit  []Restriction `json:"restrictions_hit"`
	RemindersSent    []string      `json:"reminders_sent"`
	ReminderCount    int           `json:"reminder_count"`
	StartedAt        time.Time     `json:"started_at"`
	ExpiresAt        time.Time     `json:"expires_at"`
	LastActivityAt   time.Time     `json:"last_activity_at"`
	ConvertedAt      *time.Time    `json:"converted_at,omitempty"`
	ConversionSource string        `json:"conversion_source,omitempty"`
	SubscriptionID   string        `json:"subscription_id,omitempty"`
	TrialDaysUsed    int           `json:"trial_days_used,omitempty"`
	AbandonedAt      *time.Time    `json:"abandoned_at,omitempty"`
	AbandonReason    string        `json:"abandon_reason,omitempty"`
	Extensions       Extensions    `json:"extensions,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Allows сообщает, входит ли функция в список разрешённых.
func (s *DemoSession) Allows(feature string) bool {
	for _, f := range s.AllowedFeatures {
		if f == FeatureAll || f == feature {
			return true
		}
	}
	return false
}

// HasAccessed сообщает, обращалась ли сессия к функции.
func (s *DemoSession) HasAccessed(feature string) bool {
	for _, f := range s.FeaturesAccessed {
		if f == feature {
			return true
		}
	}
	return false
}

// HasRestriction сообщает, было ли уже зафиксировано ограничение.
func (s *DemoSession) HasRestriction(t RestrictionType, feature string) bool {
	for _, r := range s.RestrictionsHit {
		if r.Type == t && r.Feature == feature {
			return true
		}
	}
	return false
}

// Reminded сообщает, отправлялось ли напоминание с данной меткой.
func (s *DemoSession) Reminded(label string) bool {
	for _, l := range s.RemindersSent {
		if l == label {
			return true
		}
	}
	return false
}

// Remaining возвращает оставшееся время сессии (не меньше нуля).
func (s *DemoSession) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
