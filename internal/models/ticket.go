package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketValid     TicketStatus = "valid"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	TicketRefunded  TicketStatus = "refunded"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID         string       `json:"id" bun:"id,pk"`
	OrderID    string       `json:"orderId" bun:"order_id"`
	SeatID     string       `json:"seatId,omitempty" bun:"seat_id"`
	Section    string       `json:"section" bun:"section"`
	Row        string       `json:"row" bun:"row_label"`
	SeatNumber string       `json:"seatNumber" bun:"seat_number"`
	Price      int64        `json:"price" bun:"price"`
	Status     TicketStatus `json:"status" bun:"status"`
	QRCode     string       `json:"qrCode" bun:"qr_code"`
	CreatedAt  time.Time    `json:"createdAt" bun:"created_at"`
}

// TicketSpec is one seat as carried JSON-encoded in payment metadata.
type TicketSpec struct {
	SeatID     string `json:"seatId"`
	Section    string `json:"section"`
	Row        string `json:"row"`
	SeatNumber string `json:"seatNumber"`
	Price      int64  `json:"price"`
}
