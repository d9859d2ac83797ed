package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"

	"github.com/domodwyer/mailyak/v3"
	"github.com/skip2/go-qrcode"

	"payment-reconciler/internal/config"
	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/models"
	"payment-reconciler/internal/utils"
)

var ErrNoRecipient = errors.New("no recipient address")

const qrSize = 256

// Mailer sends the receipt and tickets emails over SMTP.
type Mailer struct {
	host     string
	auth     smtp.Auth
	from     string
	fromName string
	baseURL  string
	log      *logger.Logger

	// send delivers a composed message; replaced in tests.
	send func(*mailyak.MailYak) error
}

func NewMailer(cfg config.MailConfig, baseURL string, log *logger.Logger) *Mailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &Mailer{
		host:     net.JoinHostPort(cfg.Host, cfg.Port),
		auth:     auth,
		from:     cfg.From,
		fromName: cfg.FromName,
		baseURL:  baseURL,
		log:      log,
		send:     func(m *mailyak.MailYak) error { return m.Send() },
	}
}

func (m *Mailer) newMessage(to, subject string) *mailyak.MailYak {
	mail := mailyak.New(m.host, m.auth)
	mail.To(to)
	mail.From(m.from)
	mail.FromName(m.fromName)
	mail.Subject(subject)
	return mail
}

func (m *Mailer) SendReceipt(ctx context.Context, to string, order *models.Order) error {
	if to == "" {
		return ErrNoRecipient
	}
	viewURL := orderViewURL(m.baseURL, order)
	total := FormatAmount(order.TotalAmount, order.Currency)

	html, err := render(receiptTemplate, messageData{Order: order, Total: total, ViewURL: viewURL})
	if err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}

	mail := m.newMessage(to, receiptSubject(order))
	mail.HTML().Set(html)
	mail.Plain().Set(plainReceipt(order, total, viewURL))

	if err := m.deliver(ctx, mail); err != nil {
		return fmt.Errorf("send receipt: %w", err)
	}
	m.log.Info("MAIL", fmt.Sprintf("Receipt for order %s delivered to %s", order.ID, to))
	return nil
}

// SendTickets sends one message with every ticket's QR code attached as a PNG.
// A ticket whose QR code cannot be encoded is left out of the attachments; the
// message still goes out with the rest and the order link.
func (m *Mailer) SendTickets(ctx context.Context, to string, order *models.Order, tickets []*models.Ticket) error {
	if to == "" {
		return ErrNoRecipient
	}
	viewURL := orderViewURL(m.baseURL, order)

	html, err := render(ticketsTemplate, messageData{Order: order, Tickets: tickets, ViewURL: viewURL})
	if err != nil {
		return fmt.Errorf("render tickets: %w", err)
	}

	mail := m.newMessage(to, ticketsSubject(order))
	mail.HTML().Set(html)
	mail.Plain().Set(fmt.Sprintf("%d ticket(s) for order %s. View: %s\n", len(tickets), order.ID, viewURL))

	for i, t := range tickets {
		payload := t.QRCode
		if payload == "" {
			payload = viewURL
		}
		png, err := qrcode.Encode(payload, qrcode.Medium, qrSize)
		if err != nil {
			m.log.Warn("MAIL", fmt.Sprintf("Skipping QR attachment for ticket %s on order %s: %v", t.ID, order.ID, err))
			continue
		}
		mail.AttachWithMimeType(fmt.Sprintf("ticket-%d.png", i+1), bytes.NewReader(png), "image/png")
	}

	if err := m.deliver(ctx, mail); err != nil {
		return fmt.Errorf("send tickets: %w", err)
	}
	m.log.Info("MAIL", fmt.Sprintf("%d tickets for order %s delivered to %s", len(tickets), order.ID, to))
	return nil
}

// deliver runs the SMTP exchange but gives up waiting once ctx is done.
func (m *Mailer) deliver(ctx context.Context, mail *mailyak.MailYak) error {
	errCh := make(chan error, 1)
	go func() { errCh <- m.send(mail) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func orderViewURL(baseURL string, o *models.Order) string {
	return utils.OrderViewURL(baseURL, o.ID, o.ViewToken)
}

// LogNotifier stands in when SMTP is not configured and only logs.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendReceipt(_ context.Context, to string, order *models.Order) error {
	n.log.Info("MAIL", fmt.Sprintf("[no SMTP] receipt for order %s to %s (%s)", order.ID, to, FormatAmount(order.TotalAmount, order.Currency)))
	return nil
}

func (n *LogNotifier) SendTickets(_ context.Context, to string, order *models.Order, tickets []*models.Ticket) error {
	n.log.Info("MAIL", fmt.Sprintf("[no SMTP] %d tickets for order %s to %s", len(tickets), order.ID, to))
	return nil
}
