package notify_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	gomail "gopkg.in/mail.v2"

	"github.com/DeafMist/nse-radar/internal/notify"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestAlertSendsPlainText(t *testing.T) {
	d := &fakeDialer{}
	m := notify.NewMailerWithDialer(notify.Config{
		Server: "smtp.test", Port: 587, User: "bot@test", To: []string{"ops@test", "dev@test"},
	}, d, nil)

	require.NoError(t, m.Alert(context.Background(), "NSE scrape failed", "capture timed out"))
	require.Len(t, d.sent, 1)

	msg := d.sent[0]
	require.Equal(t, []string{"bot@test"}, msg.GetHeader("From"))
	require.Equal(t, []string{"ops@test", "dev@test"}, msg.GetHeader("To"))
	require.Equal(t, []string{"NSE scrape failed"}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "capture timed out")
}

func TestAlertDisabled(t *testing.T) {
	d := &fakeDialer{}
	m := notify.NewMailerWithDialer(notify.Config{}, d, nil)
	require.NoError(t, m.Alert(context.Background(), "s", "b"))
	require.Empty(t, d.sent)
}

func TestAlertWrapsSendError(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	m := notify.NewMailerWithDialer(notify.Config{Server: "smtp.test", To: []string{"ops@test"}}, d, nil)
	err := m.Alert(context.Background(), "s", "b")
	require.ErrorContains(t, err, "connection refused")
	require.ErrorContains(t, err, "ops@test")
}
