// Package shipments implements outbound shipments that draw down the
// remaining weight of approved inbound receipts.
package shipments

import "time"

// Status is the shipment lifecycle state. Only DRAFT transitions, and only
// once, to LOADED.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusLoaded Status = "LOADED"
)

// Line deducts weight from one receipt balance.
type Line struct {
	ReceiptID string  `json:"receiptId"`
	QtyKg     float64 `json:"qtyKg"`
}

// Shipment is an outbound loading document.
type Shipment struct {
	OrgID      string     `json:"orgId"`
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	ShipmentNo string     `json:"shipmentNo,omitempty"`
	Lines      []Line     `json:"lines"`
	LoadedBy   int64      `json:"loadedBy,omitempty"`
	LoadedAt   *time.Time `json:"loadedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
