// Package cartons implements corrugated-carton stock: purchases that add to
// per-item balances and issues that consume them.
package cartons

import "time"

// Status is the document lifecycle state for both purchases and issues. Only
// DRAFT transitions, and only once, to POSTED.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
)

// Item is one document line: a carton item and a whole-unit quantity.
type Item struct {
	ItemID string `json:"itemId"`
	Qty    int64  `json:"qty"`
}

// Purchase adds carton stock when posted.
type Purchase struct {
	OrgID      string     `json:"orgId"`
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	PurchaseNo string     `json:"purchaseNo,omitempty"`
	Items      []Item     `json:"items"`
	PostedBy   int64      `json:"postedBy,omitempty"`
	PostedAt   *time.Time `json:"postedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Issue consumes carton stock when posted, guarded by non-negativity.
type Issue struct {
	OrgID     string     `json:"orgId"`
	ID        string     `json:"id"`
	Status    Status     `json:"status"`
	IssueNo   string     `json:"issueNo,omitempty"`
	Items     []Item     `json:"items"`
	PostedBy  int64      `json:"postedBy,omitempty"`
	PostedAt  *time.Time `json:"postedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Balance is one carton item's running stock quantity.
type Balance struct {
	OrgID     string    `json:"orgId"`
	ItemID    string    `json:"itemId"`
	Qty       int64     `json:"qty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
