package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/smtp"
	"strings"
	"testing"

	"ms-auction/internal/config"
	"ms-auction/internal/database/dbtest"
	"ms-auction/internal/directory"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

func newWorker(t *testing.T, mailer Mailer) *Worker {
	t.Helper()
	bunDB := dbtest.NewSQLite(t)
	dbtest.SeedUser(t, bunDB, "alice", true)
	return NewWorker(directory.New(bunDB), mailer, logger.NewTestLogger(io.Discard))
}

func encode(t *testing.T, n models.Notification) []byte {
	t.Helper()
	b, err := json.Marshal(n)
	require.NoError(t, err)
	return b
}

func TestWorkerHandle(t *testing.T) {
	mailer := new(MockMailer)
	mailer.On("Send", "alice@example.com", "You won Quilt!", mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, "Hi User alice") &&
			strings.Contains(body, "$45.00") &&
			strings.Contains(body, "donated by Guest Donor")
	})).Return(nil).Once()
	w := newWorker(t, mailer)

	n := testNotification("n1")
	n.Type = models.NotifyWinner
	n.DonatedBy = "Guest Donor"

	require.NoError(t, w.Handle(context.Background(), encode(t, n)))
	mailer.AssertExpectations(t)
}

func TestWorkerHandle_Failures(t *testing.T) {
	t.Run("unknown recipient is permanent", func(t *testing.T) {
		mailer := new(MockMailer)
		w := newWorker(t, mailer)
		n := testNotification("n1")
		n.RecipientID = "ghost"

		err := w.Handle(context.Background(), encode(t, n))
		assert.ErrorIs(t, err, directory.ErrBidderNotFound)
		mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("garbage payload", func(t *testing.T) {
		w := newWorker(t, new(MockMailer))
		assert.Error(t, w.Handle(context.Background(), []byte("not json")))
	})

	t.Run("mail failure is retryable", func(t *testing.T) {
		mailer := new(MockMailer)
		mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection refused"))
		w := newWorker(t, mailer)

		err := w.Handle(context.Background(), encode(t, testNotification("n1")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestRender(t *testing.T) {
	tests := []struct {
		typ         models.NotificationType
		wantSubject string
		wantBody    string
	}{
		{models.NotifyOutbid, "You've been outbid on Quilt", "higher bid of $45.00"},
		{models.NotifyWinner, "You won Quilt!", "Your bid of $45.00 won"},
		{models.NotifyPaymentReceived, "Payment received for Quilt", "payment of $45.00"},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			n := testNotification("n1")
			n.Type = tt.typ
			subject, body, err := Render(n, "Alice")
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubject, subject)
			assert.Contains(t, body, tt.wantBody)
			assert.Contains(t, body, "Hi Alice")
		})
	}

	_, _, err := Render(models.Notification{Type: "UNKNOWN", Amount: decimal.Zero}, "Alice")
	assert.Error(t, err)
}

func TestSMTPMailer(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth

	m := NewSMTPMailer(config.EmailConfig{
		SMTPHost:     "mail.example.com",
		SMTPPort:     "587",
		SMTPUsername: "auction",
		SMTPPassword: "secret",
		From:         "auction@example.com",
	})
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	require.NoError(t, m.Send("alice@example.com", "You won\r\nBcc: evil@example.com", "line one\nline two"))
	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "auction@example.com", gotFrom)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)

	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: You won  Bcc: evil@example.com\r\n")
	assert.NotContains(t, msg, "\r\nBcc:")
	assert.True(t, strings.HasSuffix(msg, "line one\r\nline two"))
}

func TestSMTPMailer_NoAuthWithoutUsername(t *testing.T) {
	m := NewSMTPMailer(config.EmailConfig{SMTPHost: "localhost", SMTPPort: "25", From: "a@b"})
	var gotAuth smtp.Auth = smtp.PlainAuth("", "x", "y", "z")
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAuth = a
		return errors.New("refused")
	}

	assert.Error(t, m.Send("alice@example.com", "s", "b"))
	assert.Nil(t, gotAuth)
}
