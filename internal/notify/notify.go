// Package notify sends completion and failure emails to owners who
// registered an address. Notification failures never affect task state.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/Vicentaelm/SubtitleMaster/internal/task"
)

type EmailNotifier struct {
	client      *sendgrid.Client
	fromName    string
	fromAddress string
}

func NewEmailNotifier(apiKey, fromName, fromAddress string) *EmailNotifier {
	return &EmailNotifier{
		client:      sendgrid.NewSendClient(apiKey),
		fromName:    fromName,
		fromAddress: fromAddress,
	}
}

// TaskFinished emails the owner when the owner key looks like an
// address. Session-generated owner keys are skipped silently.
func (n *EmailNotifier) TaskFinished(ctx context.Context, t *task.Task) error {
	if !strings.Contains(t.OwnerKey, "@") {
		return nil
	}

	subject, body := render(t)

	from := mail.NewEmail(n.fromName, n.fromAddress)
	to := mail.NewEmail("", t.OwnerKey)
	email := mail.NewSingleEmail(from, subject, to, body, body)

	response, err := n.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}

	log.Printf("Email sent to %s for task %s (status: %d)", t.OwnerKey, t.ID, response.StatusCode)
	return nil
}

func render(t *task.Task) (subject, body string) {
	if t.Status == task.StatusCompleted {
		subject = fmt.Sprintf("Subtitles ready: %s", t.OriginalFilename)
		body = fmt.Sprintf("Your subtitles for %s are ready.\nDownload: %s\n", t.OriginalFilename, t.OutputLink)
		return subject, body
	}

	subject = fmt.Sprintf("Subtitle generation failed: %s", t.OriginalFilename)
	body = fmt.Sprintf("Processing %s failed: %s\n", t.OriginalFilename, t.Message)
	return subject, body
}
