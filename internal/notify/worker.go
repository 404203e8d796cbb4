package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-auction/internal/directory"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/cenkalti/backoff/v4"
)

type RecipientDirectory interface {
	GetBidder(ctx context.Context, id string) (*models.Bidder, error)
}

// Worker turns notification messages into mail.
type Worker struct {
	Directory RecipientDirectory
	Mailer    Mailer
	Logger    *logger.Logger
}

func NewWorker(dir RecipientDirectory, mailer Mailer, log *logger.Logger) *Worker {
	return &Worker{Directory: dir, Mailer: mailer, Logger: log}
}

// Handle processes one message value. Errors that retrying cannot fix are
// returned as permanent so the consumer moves on.
func (w *Worker) Handle(ctx context.Context, value []byte) error {
	var n models.Notification
	if err := json.Unmarshal(value, &n); err != nil {
		w.Logger.Error("NOTIFY", fmt.Sprintf("Undecodable notification: %v", err))
		return backoff.Permanent(err)
	}

	recipient, err := w.Directory.GetBidder(ctx, n.RecipientID)
	if errors.Is(err, directory.ErrBidderNotFound) {
		w.Logger.Warn("NOTIFY", fmt.Sprintf("Skipping %s notification %s: %v", n.Type, n.ID, err))
		return backoff.Permanent(err)
	}
	if err != nil {
		return err
	}

	subject, body, err := Render(n, recipient.Name)
	if err != nil {
		w.Logger.Error("NOTIFY", err.Error())
		return backoff.Permanent(err)
	}

	if err := w.Mailer.Send(recipient.Email, subject, body); err != nil {
		w.Logger.Warn("NOTIFY", fmt.Sprintf("Mail for notification %s failed: %v", n.ID, err))
		return err
	}

	w.Logger.Info("NOTIFY", fmt.Sprintf("Sent %s for item %s to %s", n.Type, n.ItemID, n.RecipientID))
	return nil
}
