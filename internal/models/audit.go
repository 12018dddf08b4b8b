package models

import "time"

// AuditEntry — запись журнала аудита. Журнал только дополняется.
type AuditEntry struct {
	ID          string     `json:"id"`
	IdentityID  string     `json:"identity_id"`
	Action      string     `json:"action"`
	Description string     `json:"description"`
	Metadata    Extensions `json:"metadata,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
