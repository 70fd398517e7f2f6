// Package receipts implements inbound raw-material receipts from farms and
// the remaining-weight balances shipments later draw down.
package receipts

import "time"

// Status is the receipt lifecycle state. Only DRAFT transitions, and only
// once, to APPROVED.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusApproved Status = "APPROVED"
)

// Receipt is an inbound delivery document.
type Receipt struct {
	OrgID      string     `json:"orgId"`
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	ReceiptNo  string     `json:"receiptNo,omitempty"`
	FarmID     string     `json:"farmId"`
	QtyKg      float64    `json:"qtyKg"`
	ApprovedBy int64      `json:"approvedBy,omitempty"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Balance tracks how much of one approved receipt is still unshipped.
// Approval creates it equal to the received weight; shipments deduct from it.
type Balance struct {
	OrgID       string    `json:"orgId"`
	ReceiptID   string    `json:"receiptId"`
	RemainingKg float64   `json:"remainingKg"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
