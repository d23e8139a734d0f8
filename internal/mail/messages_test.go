package mail

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/khanghh/rootgate/internal/render"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*Message
	done chan struct{}
}

func (s *fakeSender) Send(message *Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, message)
	s.mu.Unlock()
	if s.done != nil {
		s.done <- struct{}{}
	}
	return nil
}

func newTestRenderer(t *testing.T) *render.Renderer {
	t.Helper()
	r, err := render.New(nil, "")
	require.NoError(t, err)
	return r
}

func TestSendLockoutAlert(t *testing.T) {
	sender := &fakeSender{}
	until := time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)

	err := SendLockoutAlert(sender, newTestRenderer(t), []string{"ops@example.com"}, "email:admin@example.com", until)
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	require.Equal(t, []string{"ops@example.com"}, msg.To)
	require.True(t, msg.IsHTML)
	require.Contains(t, msg.Subject, "email:admin@example.com")
	require.Contains(t, msg.Body, until.Format(time.RFC1123))
}

func TestLockoutNotifier(t *testing.T) {
	sender := &fakeSender{done: make(chan struct{}, 1)}
	notifier := NewLockoutNotifier(sender, newTestRenderer(t), []string{"ops@example.com"})

	notifier.NotifyBlocked(context.Background(), "ip:10.0.0.1", time.Now())
	select {
	case <-sender.done:
	case <-time.After(5 * time.Second):
		t.Fatal("lockout alert not sent")
	}

	var nilNotifier *LockoutNotifier
	require.NotPanics(t, func() {
		nilNotifier.NotifyBlocked(context.Background(), "id", time.Now())
	})
	NewLockoutNotifier(sender, nil, nil).NotifyBlocked(context.Background(), "id", time.Now())
	require.Len(t, sender.sent, 1)
}

func TestNewSMTPMailSender(t *testing.T) {
	_, err := NewSMTPMailSender(SMTPConfig{}, "noreply@example.com")
	require.Error(t, err)

	sender, err := NewSMTPMailSender(SMTPConfig{Host: "smtp.example.com", Port: 587}, "noreply@example.com")
	require.NoError(t, err)
	require.Equal(t, "smtp.example.com", sender.dialer.TLSConfig.ServerName)
}
