package sender

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/licensing-backend/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/smtp"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Dial() (smtp.Session, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Session), args.Error(1)
}

func (m *MockMailer) From() string {
	args := m.Called()
	return args.String(0)
}

type MockSession struct {
	mock.Mock
}

func (m *MockSession) Mail(from string) error {
	args := m.Called(from)
	return args.Error(0)
}

func (m *MockSession) Rcpt(to string) error {
	args := m.Called(to)
	return args.Error(0)
}

func (m *MockSession) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockSession) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSession) Quit() error {
	args := m.Called()
	return args.Error(0)
}

type MockSMTPWriter struct {
	mock.Mock
}

func (m *MockSMTPWriter) Write(p []byte) (n int, err error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *MockSMTPWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const reminderBody = `{"template":"demo_reminder","identity_id":"u1","email":"test@example.com","display_name":"Test","data":{"label":"3d","remaining":"72h0m0s","expires_at":"2026-03-04T12:00:00Z","upgrade_url":"https://example.com/pricing"}}`

func TestService_Handle(t *testing.T) {
	tests := []struct {
		name          string
		body          []byte
		setupMocks    func(*MockMailer)
		expectedError bool
		discard       bool
	}{
		{
			name: "success - send reminder email",
			body: []byte(reminderBody),
			setupMocks: func(t *MockMailer) {
				mockClient := new(MockSession)
				mockWriter := new(MockSMTPWriter)

				t.On("From").Return("sender@example.com")
				t.On("Dial").Return(mockClient, nil).Once()
				mockClient.On("Mail", "sender@example.com").Return(nil).Once()
				mockClient.On("Rcpt", "test@example.com").Return(nil).Once()
				mockClient.On("Data").Return(mockWriter, nil).Once()
				mockWriter.On("Write", mock.MatchedBy(func(p []byte) bool {
					s := string(p)
					return strings.Contains(s, "To: test@example.com") &&
						strings.Contains(s, "72h0m0s") &&
						strings.Contains(s, "https://example.com/pricing")
				})).Return(100, nil).Once()
				mockWriter.On("Close").Return(nil).Once()
				mockClient.On("Quit").Return(nil).Once()
				mockClient.On("Close").Return(nil).Once()
			},
		},
		{
			name:          "error - invalid json",
			body:          []byte(`{"template":`),
			setupMocks:    func(*MockMailer) {},
			expectedError: true,
			discard:       true,
		},
		{
			name:          "error - unknown template",
			body:          []byte(`{"template":"welcome_back","email":"test@example.com"}`),
			setupMocks:    func(*MockMailer) {},
			expectedError: true,
			discard:       true,
		},
		{
			name:          "error - missing recipient",
			body:          []byte(`{"template":"demo_expired"}`),
			setupMocks:    func(*MockMailer) {},
			expectedError: true,
			discard:       true,
		},
		{
			name: "error - connect failed",
			body: []byte(reminderBody),
			setupMocks: func(t *MockMailer) {
				t.On("From").Return("sender@example.com")
				t.On("Dial").Return(nil, errors.New("connection refused")).Once()
			},
			expectedError: true,
		},
		{
			name: "error - rcpt rejected",
			body: []byte(reminderBody),
			setupMocks: func(t *MockMailer) {
				mockClient := new(MockSession)

				t.On("From").Return("sender@example.com")
				t.On("Dial").Return(mockClient, nil).Once()
				mockClient.On("Mail", "sender@example.com").Return(nil).Once()
				mockClient.On("Rcpt", "test@example.com").Return(errors.New("550 no such user")).Once()
				mockClient.On("Close").Return(nil).Once()
			},
			expectedError: true,
		},
		{
			name: "error - write failed",
			body: []byte(reminderBody),
			setupMocks: func(t *MockMailer) {
				mockClient := new(MockSession)
				mockWriter := new(MockSMTPWriter)

				t.On("From").Return("sender@example.com")
				t.On("Dial").Return(mockClient, nil).Once()
				mockClient.On("Mail", "sender@example.com").Return(nil).Once()
				mockClient.On("Rcpt", "test@example.com").Return(nil).Once()
				mockClient.On("Data").Return(mockWriter, nil).Once()
				mockWriter.On("Write", mock.AnythingOfType("[]uint8")).Return(0, errors.New("broken pipe")).Once()
				mockClient.On("Close").Return(nil).Once()
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := new(MockMailer)
			tt.setupMocks(mailer)
			s := New(mailer, newNoopLogger())

			err := s.Handle(tt.body)
			if tt.expectedError {
				require.Error(t, err)
				assert.Equal(t, tt.discard, errors.Is(err, rabbitmq.ErrDiscard))
			} else {
				require.NoError(t, err)
			}
			mailer.AssertExpectations(t)
		})
	}
}

func TestCompose(t *testing.T) {
	templates := []string{
		models.TemplateDemoWelcome,
		models.TemplateDemoReminder,
		models.TemplateDemoExpired,
		models.TemplateDemoConverted,
		models.TemplateLicenseTransferred,
	}
	for _, tpl := range templates {
		t.Run(tpl, func(t *testing.T) {
			subject, body, err := Compose(models.Notification{
				Template:    tpl,
				Email:       "test@example.com",
				DisplayName: "Test",
			})
			require.NoError(t, err)
			assert.NotEmpty(t, subject)
			assert.Contains(t, body, "Test")
		})
	}
}

func TestCompose_JoinsFeatureList(t *testing.T) {
	_, body, err := Compose(models.Notification{
		Template: models.TemplateDemoWelcome,
		Email:    "test@example.com",
		Data:     map[string]any{"features": []any{"basic_editor", "export_pdf"}},
	})
	require.NoError(t, err)
	assert.Contains(t, body, "basic_editor, export_pdf")
	assert.Contains(t, body, "test@example.com")
}
