// Package models содержит доменные модели сервиса лицензирования: синхронизированные
// учётные записи (Identity), лицензии, демо-сессии, записи аудита и события использования.
// Модели сериализуются в JSON-документы хранилища, поэтому json-теги являются
// именами полей документа и используются в запросах по равенству и диапазону.
package models

// Имена коллекций документного хранилища.
const (
	CollectionIdentities   = "identities"
	CollectionLicenses     = "licenses"
	CollectionDemoSessions = "demo_sessions"
	CollectionAuditLogs    = "audit_logs"
	CollectionLicenseUsage = "license_usage"
)
