package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const viewTokenBytes = 24

// GenerateOrderID returns a random order identifier, independent of any provider id.
func GenerateOrderID() string {
	return "ord_" + uuid.NewString()
}

func GenerateTicketID() string {
	return "tkt_" + uuid.NewString()
}

// GenerateViewToken returns an opaque random token for unauthenticated order views.
func GenerateViewToken() (string, error) {
	b := make([]byte, viewTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate view token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// OrderViewURL is the public order page for a view token. Ticket QR codes
// encode this URL, so every ticket of an order carries the same one.
func OrderViewURL(baseURL, orderID, viewToken string) string {
	return fmt.Sprintf("%s/orders/%s?token=%s",
		strings.TrimRight(baseURL, "/"), url.PathEscape(orderID), url.QueryEscape(viewToken))
}
