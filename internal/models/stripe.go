package models

import (
	"bytes"
	"encoding/json"
)

// Payment-intent metadata keys. Stripe metadata values are flat strings, so
// structured values (ticket specs) travel JSON-encoded.
const (
	MetaOrderID         = "orderId"
	MetaBuyerID         = "buyerId"
	MetaSellerID        = "sellerId"
	MetaProductionID    = "productionId"
	MetaPerformanceID   = "performanceId"
	MetaTickets         = "tickets"
	MetaEmail           = "email"
	MetaBuyerEmail      = "buyerEmail"
	MetaProductionName  = "productionName"
	MetaVenueName       = "venueName"
	MetaVenueAddress    = "venueAddress"
	MetaVenueStreet     = "venueStreet"
	MetaVenueCity       = "venueCity"
	MetaVenueState      = "venueState"
	MetaVenueZip        = "venueZip"
	MetaPerformanceDate = "performanceDate"
	MetaPerformanceTime = "performanceTime"
	MetaUserID          = "userId"
)

// ExpandableID decodes a Stripe reference that is either a bare id or an
// expanded object carrying an "id" field.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

func (e ExpandableID) String() string { return string(e) }

// PaymentIntentPayload is the subset of a payment_intent event object the reconciler reads.
type PaymentIntentPayload struct {
	ID                 string            `json:"id"`
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	Customer           ExpandableID      `json:"customer"`
	Metadata           map[string]string `json:"metadata"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	ReceiptEmail       string            `json:"receipt_email"`
	LastPaymentError   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// Meta returns the metadata value for key, or "" when absent.
func (p *PaymentIntentPayload) Meta(key string) string {
	if p.Metadata == nil {
		return ""
	}
	return p.Metadata[key]
}

// PaymentMethodLabel is the first listed payment method type, "card" by default.
func (p *PaymentIntentPayload) PaymentMethodLabel() string {
	if len(p.PaymentMethodTypes) > 0 && p.PaymentMethodTypes[0] != "" {
		return p.PaymentMethodTypes[0]
	}
	return "card"
}

type SubscriptionItemPayload struct {
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
	Price              struct {
		ID       string       `json:"id"`
		Nickname string       `json:"nickname"`
		Product  ExpandableID `json:"product"`
	} `json:"price"`
	Plan struct {
		ID       string `json:"id"`
		Nickname string `json:"nickname"`
	} `json:"plan"`
}

// SubscriptionPayload is the subset of a customer.subscription.* object the projector reads.
type SubscriptionPayload struct {
	ID                 string            `json:"id"`
	Customer           ExpandableID      `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []SubscriptionItemPayload `json:"data"`
	} `json:"items"`
}

// PeriodBounds prefers the top-level period fields and falls back to the first
// item, where newer API versions carry them.
func (s *SubscriptionPayload) PeriodBounds() (start, end int64) {
	start, end = s.CurrentPeriodStart, s.CurrentPeriodEnd
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if start == 0 {
			start = item.CurrentPeriodStart
		}
		if end == 0 {
			end = item.CurrentPeriodEnd
		}
	}
	return start, end
}

// Plan returns the plan identifier and display name of the first item.
func (s *SubscriptionPayload) Plan() (id, name string) {
	if len(s.Items.Data) == 0 {
		return "", ""
	}
	item := s.Items.Data[0]
	id = item.Price.ID
	if id == "" {
		id = item.Plan.ID
	}
	name = item.Price.Nickname
	if name == "" {
		name = item.Plan.Nickname
	}
	if name == "" {
		name = item.Price.Product.String()
	}
	return id, name
}

// InvoicePayload is the subset of an invoice.* object the projector reads.
type InvoicePayload struct {
	ID                  string       `json:"id"`
	Customer            ExpandableID `json:"customer"`
	Subscription        ExpandableID `json:"subscription"`
	Status              string       `json:"status"`
	Created             int64        `json:"created"`
	SubscriptionDetails *struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
	Parent *struct {
		SubscriptionDetails *struct {
			Subscription ExpandableID     `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
}

// SubscriptionID handles both the legacy top-level field and parent.subscription_details.
func (i *InvoicePayload) SubscriptionID() string {
	if i.Subscription != "" {
		return i.Subscription.String()
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Subscription.String()
	}
	return ""
}

// SubscriptionMeta returns the subscription metadata snapshot carried on the invoice.
func (i *InvoicePayload) SubscriptionMeta(key string) string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil && i.Parent.SubscriptionDetails.Metadata != nil {
		if v := i.Parent.SubscriptionDetails.Metadata[key]; v != "" {
			return v
		}
	}
	if i.SubscriptionDetails != nil && i.SubscriptionDetails.Metadata != nil {
		return i.SubscriptionDetails.Metadata[key]
	}
	return ""
}
