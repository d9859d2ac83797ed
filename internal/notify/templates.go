package notify

import (
	"bytes"
	"html/template"
	"strings"

	"payment-reconciler/internal/models"
)

var receiptTemplate = template.Must(template.New("receipt").Parse(`<h2>Thanks for your order</h2>
<p>Order <strong>{{.Order.ID}}</strong> is confirmed.</p>
{{if .Order.ProductionName}}<p>{{.Order.ProductionName}}{{if .Order.PerformanceDate}} &middot; {{.Order.PerformanceDate}}{{end}}{{if .Order.PerformanceTime}} {{.Order.PerformanceTime}}{{end}}</p>{{end}}
{{if .Order.VenueName}}<p>{{.Order.VenueName}}{{if .Order.VenueAddress}}<br>{{.Order.VenueAddress}}{{end}}</p>{{end}}
<p>Total paid: {{.Total}} ({{.Order.PaymentMethod}})</p>
<p><a href="{{.ViewURL}}">View your order</a></p>
`))

var ticketsTemplate = template.Must(template.New("tickets").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(`<h2>Your tickets</h2>
<p>{{len .Tickets}} ticket(s) for order <strong>{{.Order.ID}}</strong>{{if .Order.ProductionName}}, {{.Order.ProductionName}}{{end}}.</p>
<ul>
{{range $i, $t := .Tickets}}<li>{{if $t.Section}}Section {{$t.Section}} {{end}}{{if $t.Row}}Row {{$t.Row}} {{end}}{{if $t.SeatNumber}}Seat {{$t.SeatNumber}}{{end}} &middot; QR code attached as ticket-{{inc $i}}.png</li>
{{end}}</ul>
<p>Show the QR code at the door, or open <a href="{{.ViewURL}}">your order</a>.</p>
`))

type messageData struct {
	Order   *models.Order
	Tickets []*models.Ticket
	Total   string
	ViewURL string
}

func render(t *template.Template, data messageData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func receiptSubject(o *models.Order) string {
	if o.ProductionName != "" {
		return "Your receipt for " + o.ProductionName
	}
	return "Your receipt for order " + o.ID
}

func ticketsSubject(o *models.Order) string {
	if o.ProductionName != "" {
		return "Your tickets for " + o.ProductionName
	}
	return "Your tickets for order " + o.ID
}

func plainReceipt(o *models.Order, total, viewURL string) string {
	var b strings.Builder
	b.WriteString("Order " + o.ID + " is confirmed.\n")
	if o.ProductionName != "" {
		b.WriteString(o.ProductionName + "\n")
	}
	b.WriteString("Total paid: " + total + "\n")
	b.WriteString("View your order: " + viewURL + "\n")
	return b.String()
}
