package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"ms-auction/internal/models"
)

type message struct {
	subject *template.Template
	body    *template.Template
}

var messages = map[models.NotificationType]message{
	models.NotifyOutbid: {
		subject: template.Must(template.New("outbid.subject").Parse(`You've been outbid on {{.ItemTitle}}`)),
		body: template.Must(template.New("outbid.body").Parse(`Hi {{.Name}},

Someone placed a higher bid of ${{.Amount}} on "{{.ItemTitle}}".
Bid again before the auction closes to stay in the running.
`)),
	},
	models.NotifyWinner: {
		subject: template.Must(template.New("winner.subject").Parse(`You won {{.ItemTitle}}!`)),
		body: template.Must(template.New("winner.body").Parse(`Hi {{.Name}},

Congratulations! Your bid of ${{.Amount}} won "{{.ItemTitle}}"{{if .DonatedBy}}, donated by {{.DonatedBy}}{{end}}.
Please complete payment by card or check from your account page.
`)),
	},
	models.NotifyPaymentReceived: {
		subject: template.Must(template.New("paid.subject").Parse(`Payment received for {{.ItemTitle}}`)),
		body: template.Must(template.New("paid.body").Parse(`Hi {{.Name}},

We received your payment of ${{.Amount}} for "{{.ItemTitle}}". Thank you for supporting the auction!
`)),
	},
}

type templateData struct {
	Name      string
	ItemTitle string
	Amount    string
	DonatedBy string
}

// Render returns the subject and plain-text body for n addressed to name.
func Render(n models.Notification, name string) (string, string, error) {
	msg, ok := messages[n.Type]
	if !ok {
		return "", "", fmt.Errorf("no template for notification type %q", n.Type)
	}

	data := templateData{
		Name:      name,
		ItemTitle: n.ItemTitle,
		Amount:    n.Amount.StringFixed(2),
		DonatedBy: n.DonatedBy,
	}

	var subject, body bytes.Buffer
	if err := msg.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", n.Type, err)
	}
	if err := msg.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", n.Type, err)
	}
	return subject.String(), body.String(), nil
}
