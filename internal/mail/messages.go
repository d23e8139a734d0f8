package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/rootgate/internal/render"
)

func SendLockoutAlert(sender MailSender, renderer *render.Renderer, to []string, identity string, until time.Time) error {
	body, err := renderer.Render("mail/lockout-alert", fiber.Map{
		"identity":     identity,
		"blockedUntil": until.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return err
	}
	return sender.Send(&Message{
		To:      to,
		Subject: fmt.Sprintf("Root admin sign-in blocked for %s", identity),
		Body:    body,
		IsHTML:  true,
	})
}

// LockoutNotifier mails the alert recipients when an identity gets blocked.
// Mails are sent in the background, failures are only logged.
type LockoutNotifier struct {
	sender     MailSender
	renderer   *render.Renderer
	recipients []string
}

func (n *LockoutNotifier) NotifyBlocked(ctx context.Context, identity string, until time.Time) {
	if n == nil || len(n.recipients) == 0 {
		return
	}
	go func() {
		if err := SendLockoutAlert(n.sender, n.renderer, n.recipients, identity, until); err != nil {
			slog.Error("Failed to send lockout alert", "identity", identity, "recipients", strings.Join(n.recipients, ","), "error", err)
		}
	}()
}

func NewLockoutNotifier(sender MailSender, renderer *render.Renderer, recipients []string) *LockoutNotifier {
	return &LockoutNotifier{
		sender:     sender,
		renderer:   renderer,
		recipients: recipients,
	}
}
