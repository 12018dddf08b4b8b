package models

import (
	"strings"
	"time"
)

// Role — роль пользователя в системе.
type Role string

const (
	RoleUser       Role = "USER"
	RoleTeamMember Role = "TEAM_MEMBER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleTeamMember, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin возвращает true для административных ролей.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Identity — учётная запись, синхронизированная между провайдером
// идентификации и документным хранилищем.
//
// ExternalID заполняется только синхронизатором и ссылается на запись
// провайдера с тем же email.
type Identity struct {
	ID            string     `json:"id"`
	ExternalID    string     `json:"external_id,omitempty"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name"`
	Role          Role       `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	IsDemo        bool       `json:"is_demo"`
	DemoExpiredAt *time.Time `json:"demo_expired_at,omitempty"`
	Extensions    Extensions `json:"extensions,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Synchronized сообщает, привязана ли учётная запись к провайдеру.
func (i Identity) Synchronized() bool {
	return i.ExternalID != ""
}

// NormalizeEmail приводит email к каноническому виду, в котором он хранится
// и сравнивается во всех хранилищах.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
