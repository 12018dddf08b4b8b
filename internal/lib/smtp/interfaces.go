// Package smtp доставляет письма notification-sender: уведомления о лицензиях
// и напоминания о демо-доступе.
package smtp

import "io"

// Session — одно открытое соединение с почтовым сервером. Закрывается после каждого письма.
type Session interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// Mailer открывает сессии от имени адреса From.
type Mailer interface {
	Dial() (Session, error)
	From() string
}
