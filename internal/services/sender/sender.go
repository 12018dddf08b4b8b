// Package sender превращает уведомления из брокера в письма и отправляет их по SMTP.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/licensing-backend/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/smtp"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
)

// Service отправляет письма по шаблонам уведомлений.
type Service struct {
	mailer smtp.Mailer
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(mailer smtp.Mailer, log *slog.Logger) *Service {
	return &Service{
		mailer: mailer,
		log:    log,
	}
}

// Handle разбирает тело сообщения и отправляет соответствующее письмо.
// Нераспознанные сообщения помечаются rabbitmq.ErrDiscard.
func (s *Service) Handle(body []byte) error {
	var msg models.Notification
	if err := json.Unmarshal(body, &msg); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w: %w", rabbitmq.ErrDiscard, err)
	}
	if msg.Email == "" {
		return fmt.Errorf("notification without recipient: %w", rabbitmq.ErrDiscard)
	}

	subject, text, err := Compose(msg)
	if err != nil {
		s.log.Error("failed to compose email", slog.String("template", msg.Template), sl.Err(err))
		return fmt.Errorf("%w: %w", rabbitmq.ErrDiscard, err)
	}
	return s.sendEmail([]string{msg.Email}, subject, text)
}

// Compose возвращает тему и текст письма для уведомления.
func Compose(msg models.Notification) (string, string, error) {
	name := msg.DisplayName
	if name == "" {
		name = msg.Email
	}
	data := func(key string) string {
		switch v := msg.Data[key].(type) {
		case nil:
			return ""
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			return strings.Join(parts, ", ")
		default:
			return fmt.Sprint(v)
		}
	}

	switch msg.Template {
	case models.TemplateDemoWelcome:
		return "Добро пожаловать в пробный период",
			fmt.Sprintf("Здравствуйте, %s!\n\nВаш пробный период активирован и действует до %s.\n\nДоступные функции: %s.",
				name, data("expires_at"), data("features")), nil
	case models.TemplateDemoReminder:
		return "Пробный период скоро закончится",
			fmt.Sprintf("Здравствуйте, %s!\n\nДо окончания пробного периода осталось %s (до %s).\n\nОформить подписку: %s",
				name, data("remaining"), data("expires_at"), data("upgrade_url")), nil
	case models.TemplateDemoExpired:
		return "Пробный период закончился",
			fmt.Sprintf("Здравствуйте, %s!\n\nВаш пробный период закончился. Данные сохранены, доступ восстановится после оформления подписки.\n\nОформить подписку: %s",
				name, data("upgrade_url")), nil
	case models.TemplateDemoConverted:
		return "Подписка оформлена",
			fmt.Sprintf("Здравствуйте, %s!\n\nСпасибо за оформление подписки %s. Полный доступ уже открыт.",
				name, data("subscription_id")), nil
	case models.TemplateLicenseTransferred:
		return "Вам передана лицензия",
			fmt.Sprintf("Здравствуйте, %s!\n\nВам передана лицензия %s (тариф %s). Активируйте её на своём устройстве.",
				name, data("license_key"), data("tier")), nil
	default:
		return "", "", fmt.Errorf("unknown template %q", msg.Template)
	}
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	from := s.mailer.From()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.mailer.Dial()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			s.log.Debug("failed to close SMTP client", sl.Err(err))
		}
	}()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", "to", to)
	return nil
}
