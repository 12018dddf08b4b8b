package models

import "time"

// Tier — уровень лицензии.
type Tier string

const (
	TierBasic      Tier = "BASIC"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
)

// LicenseStatus — состояние лицензии в жизненном цикле.
type LicenseStatus string

const (
	LicenseStatusPending   LicenseStatus = "PENDING"
	LicenseStatusActive    LicenseStatus = "ACTIVE"
	LicenseStatusSuspended LicenseStatus = "SUSPENDED"
	LicenseStatusExpired   LicenseStatus = "EXPIRED"
	LicenseStatusRevoked   LicenseStatus = "REVOKED"
)

// BlocksActivation сообщает, запрещает ли состояние новую активацию.
func (s LicenseStatus) BlocksActivation() bool {
	switch s {
	case LicenseStatusSuspended, LicenseStatusExpired, LicenseStatusRevoked:
		return true
	}
	return false
}

type licenseTransition struct {
	From LicenseStatus
	To   LicenseStatus
}

// licenseTransitions — закрытая таблица допустимых переходов.
// Из REVOKED выхода нет, из EXPIRED возможен только отзыв.
var licenseTransitions = map[licenseTransition]bool{
	{LicenseStatusPending, LicenseStatusActive}:    true, // первая активация
	{LicenseStatusPending, LicenseStatusPending}:   true, // передача неактивированной лицензии
	{LicenseStatusPending, LicenseStatusExpired}:   true, // ленивое истечение
	{LicenseStatusPending, LicenseStatusRevoked}:   true,
	{LicenseStatusActive, LicenseStatusActive}:     true, // активация на ещё одном устройстве
	{LicenseStatusActive, LicenseStatusSuspended}:  true, // деактивация владельцем
	{LicenseStatusActive, LicenseStatusExpired}:    true,
	{LicenseStatusActive, LicenseStatusRevoked}:    true,
	{LicenseStatusActive, LicenseStatusPending}:    true, // передача новому владельцу
	{LicenseStatusSuspended, LicenseStatusActive}:  true, // повторная активация владельцем
	{LicenseStatusSuspended, LicenseStatusExpired}: true,
	{LicenseStatusSuspended, LicenseStatusRevoked}: true,
	{LicenseStatusSuspended, LicenseStatusPending}: true,
	{LicenseStatusExpired, LicenseStatusRevoked}:   true, // отзыв администратором
}

// CanTransitionLicense проверяет допустимость перехода между состояниями лицензии.
func CanTransitionLicense(from, to LicenseStatus) bool {
	return licenseTransitions[licenseTransition{from, to}]
}

// Limits — числовые ограничения лицензии.
type Limits struct {
	MaxActivations int `json:"max_activations"`
	MaxSeats       int `json:"max_seats"`
}

// DeviceInfo содержит атрибуты устройства, которые клиент передаёт при активации.
type DeviceInfo struct {
	MachineID  string `json:"machine_id" validate:"required,max=256"`
	Hostname   string `json:"hostname" validate:"max=256"`
	OS         string `json:"os" validate:"required,max=64"`
	OSVersion  string `json:"os_version" validate:"max=64"`
	Arch       string `json:"arch" validate:"max=32"`
	AppVersion string `json:"app_version" validate:"max=64"`
}

// RequestMeta содержит метаданные входящего запроса.
type RequestMeta struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id"`
}

// DeviceBinding — привязка лицензии к последнему активировавшему устройству.
type DeviceBinding struct {
	Fingerprint string     `json:"fingerprint"`
	Device      DeviceInfo `json:"device"`
	IP          string     `json:"ip,omitempty"`
	UserAgent   string     `json:"user_agent,omitempty"`
	BoundAt     time.Time  `json:"bound_at"`
}

// License — ключ, дающий право на использование продукта, принадлежащий
// одной учётной записи в рамках одной подписки.
//
// Инвариант: ActivationCount <= Limits.MaxActivations.
type License struct {
	ID              string         `json:"id"`
	Key             string         `json:"key"`
	OwnerID         string         `json:"owner_id"`
	SubscriptionID  string         `json:"subscription_id"`
	Tier            Tier           `json:"tier"`
	Status          LicenseStatus  `json:"status"`
	Features        []string       `json:"features"`
	Limits          Limits         `json:"limits"`
	ActivationCount int            `json:"activation_count"`
	Device          *DeviceBinding `json:"device,omitempty"`
	ActivatedAt     *time.Time     `json:"activated_at,omitempty"`
	ExpiresAt       time.Time      `json:"expires_at"`
	SuspendedAt     *time.Time     `json:"suspended_at,omitempty"`
	RevokedAt       *time.Time     `json:"revoked_at,omitempty"`
	StatusReason    string         `json:"status_reason,omitempty"`
	Extensions      Extensions     `json:"extensions,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ExpiredAt сообщает, истёк ли срок действия лицензии к моменту now.
func (l *License) ExpiredAt(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// HasFeature проверяет наличие флага функции в лицензии.
func (l *License) HasFeature(feature string) bool {
	for _, f := range l.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// UsageKind — вид события использования лицензии.
type UsageKind string

const (
	UsageActivation         UsageKind = "activation"
	UsageActivationRejected UsageKind = "activation_rejected"
	UsageDeactivation       UsageKind = "deactivation"
	UsageReactivation       UsageKind = "reactivation"
	UsageTransfer           UsageKind = "transfer"
)

// UsageEvent — событие учёта использования лицензии.
type UsageEvent struct {
	ID          string    `json:"id"`
	LicenseID   string    `json:"license_id"`
	LicenseKey  string    `json:"license_key"`
	IdentityID  string    `json:"identity_id"`
	Kind        UsageKind `json:"kind"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	IP          string    `json:"ip,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
