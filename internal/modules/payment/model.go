// README: Payment records, provider responses, and the raw webhook log.
package payment

import (
	"strings"
	"time"

	"twende/internal/types"
)

// Status is free text: the local lifecycle labels below or whatever the
// provider last reported.
const (
	StatusNew        = "New"
	StatusInitiating = "Initiating"
	StatusStarted    = "Started"
	StatusPaid       = "Paid"
	StatusFailed     = "Failed"
	// statusRequestFailed is what a failed transaction-status query records.
	statusRequestFailed = "failed"
)

type Payment struct {
	ID            types.ID    `json:"id"`
	RideID        types.ID    `json:"ride_id"`
	Phone         string      `json:"phone"`
	Amount        types.Money `json:"amount"`
	Status        string      `json:"status"`
	RemoteID      string      `json:"remote_id"`
	TransactionID string      `json:"transaction_id"`
	MpesaCode     string      `json:"mpesa_code"`
	ClaimedAt     *time.Time  `json:"-"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Response is the raw provider answer to one interaction with a payment.
type Response struct {
	ID         int64     `json:"id"`
	PaymentID  types.ID  `json:"payment_id"`
	Operation  string    `json:"operation"`
	StatusCode int       `json:"status_code"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// WebhookLog keeps every inbound provider callback verbatim. Truncated marks
// a body that exceeded the read limit; Request then holds only its head.
type WebhookLog struct {
	ID        int64     `json:"id"`
	Request   string    `json:"request"`
	Response  string    `json:"response"`
	Truncated bool      `json:"truncated"`
	CreatedAt time.Time `json:"created_at"`
}

// Token is the idempotency token submitted with every initiation of a
// payment. It is a pure function of the payment id and fits the provider's
// 12 character account reference.
func Token(id types.ID) string {
	raw := strings.ToUpper(strings.ReplaceAll(string(id), "-", ""))
	if len(raw) > 10 {
		raw = raw[:10]
	}
	return "TW" + raw
}
