package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/iliyamo/tourism-reservation/internal/model"
	"github.com/iliyamo/tourism-reservation/internal/queue"
)

// Email kinds.
const (
	KindConfirmation = queue.KindConfirmation
	KindReminder     = queue.KindReminder
)

var (
	confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html><body>
<h2>Your reservation is confirmed</h2>
<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>Reservation #{{.ID}} has been confirmed.</p>
<ul>
{{- if .EventTitle}}
<li>Event: {{.EventTitle}}</li>
{{- end}}
<li>Number of tickets: {{.Quantity}}</li>
<li>Total price: {{.TotalPrice}}</li>
<li>Visit date: {{.VisitDate}}</li>
</ul>
</body></html>`))

	reminderTmpl = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html><body>
<h2>Reminder of your upcoming visit</h2>
<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>This is a reminder for reservation #{{.ID}}.</p>
<ul>
{{- if .EventTitle}}
<li>Event: {{.EventTitle}}</li>
{{- end}}
<li>Number of tickets: {{.Quantity}}</li>
<li>Total price: {{.TotalPrice}}</li>
<li>Visit date: {{.VisitDate}}</li>
</ul>
</body></html>`))
)

// MessageData is what the email templates render.
type MessageData struct {
	ID         uint64
	Name       string
	EventTitle string
	Quantity   int
	TotalPrice string
	VisitDate  string
}

// NewMessageData builds template data for r.  eventTitle may be empty.
func NewMessageData(r *model.Reservation, user *model.User, eventTitle string) MessageData {
	d := MessageData{
		ID:         r.ID,
		EventTitle: eventTitle,
		Quantity:   r.Quantity,
		TotalPrice: r.TotalPrice.StringFixed(2),
		VisitDate:  r.VisitDate.UTC().Format(time.RFC1123),
	}
	if user != nil {
		d.Name = user.Name
	}
	return d
}

// Render produces the email of the given kind for data.
func Render(kind string, to string, data MessageData) (Email, error) {
	var (
		tmpl    *template.Template
		subject string
	)
	switch kind {
	case KindConfirmation:
		tmpl, subject = confirmationTmpl, "Reservation confirmed"
	case KindReminder:
		tmpl, subject = reminderTmpl, "Reservation reminder"
	default:
		return Email{}, fmt.Errorf("notify: unknown email kind %q", kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Email{}, fmt.Errorf("render %s email: %w", kind, err)
	}
	return Email{
		To:            to,
		Subject:       subject,
		HTML:          buf.String(),
		Kind:          kind,
		ReservationID: data.ID,
	}, nil
}
