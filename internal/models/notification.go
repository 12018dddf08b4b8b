package models

// Шаблоны уведомлений.
const (
	TemplateDemoWelcome        = "demo_welcome"
	TemplateDemoReminder       = "demo_reminder"
	TemplateDemoExpired        = "demo_expired"
	TemplateDemoConverted      = "demo_converted"
	TemplateLicenseTransferred = "license_transferred"
)

// Notification — сообщение, передаваемое отправителю писем через брокер.
type Notification struct {
	Template    string         `json:"template"`
	IdentityID  string         `json:"identity_id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	Data        map[string]any `json:"data,omitempty"`
}
