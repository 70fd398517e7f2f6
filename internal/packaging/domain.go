// Package packaging implements reusable-packaging transfers between owners
// (plants, farms, the company pool) and the per-owner pack-type balances they
// move.
package packaging

import (
	"fmt"
	"time"
)

// Status is the transfer lifecycle state. Only DRAFT transitions, and only
// once, to POSTED.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
)

// OwnerType identifies the kind of packaging-balance holder.
type OwnerType string

const (
	OwnerPlant   OwnerType = "PLANT"
	OwnerFarm    OwnerType = "FARM"
	OwnerCompany OwnerType = "COMPANY"
)

// Owner is one side of a transfer.
type Owner struct {
	Type OwnerType `json:"type"`
	ID   string    `json:"id"`
}

// OwnerKey derives the balance-row key for an owner. COMPANY owners collapse
// to one key per organization: all company-level packaging is a single pool
// regardless of which company actor posted.
func OwnerKey(orgID string, o Owner) string {
	if o.Type == OwnerCompany {
		return fmt.Sprintf("COMPANY_%s", orgID)
	}
	return fmt.Sprintf("%s_%s", o.Type, o.ID)
}

// Item is one transfer line: a pack type and a whole-unit quantity.
type Item struct {
	PackType string `json:"packType"`
	Qty      int64  `json:"qty"`
}

// Transfer is a packaging movement document.
type Transfer struct {
	OrgID     string     `json:"orgId"`
	ID        string     `json:"id"`
	Status    Status     `json:"status"`
	DocNo     string     `json:"docNo,omitempty"`
	FromOwner Owner      `json:"fromOwner"`
	ToOwner   Owner      `json:"toOwner"`
	Items     []Item     `json:"items"`
	PostedBy  int64      `json:"postedBy,omitempty"`
	PostedAt  *time.Time `json:"postedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Balance is one owner's running pack-type quantities. Missing pack types
// read as zero; writes merge, unrelated pack types are preserved.
type Balance struct {
	OrgID     string           `json:"orgId"`
	OwnerKey  string           `json:"ownerKey"`
	Balances  map[string]int64 `json:"balances"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
