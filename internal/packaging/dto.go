package packaging

// CreateTransferRequest is the draft-creation payload. Quantities are only
// range-checked at posting time, so a draft may hold values the post will
// later reject.
type CreateTransferRequest struct {
	FromOwner OwnerRequest  `json:"fromOwner" validate:"required"`
	ToOwner   OwnerRequest  `json:"toOwner" validate:"required"`
	Items     []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// OwnerRequest carries one owner reference.
type OwnerRequest struct {
	Type string `json:"type" validate:"required,oneof=PLANT FARM COMPANY"`
	ID   string `json:"id"`
}

// ItemRequest carries one transfer line.
type ItemRequest struct {
	PackType string `json:"packType" validate:"required"`
	Qty      int64  `json:"qty"`
}

// TransferResponse is the document view returned by draft creation and reads.
type TransferResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	DocNo     string `json:"docNo,omitempty"`
	FromOwner Owner  `json:"fromOwner"`
	ToOwner   Owner  `json:"toOwner"`
	Items     []Item `json:"items"`
}

// BalanceResponse is one owner's balance row.
type BalanceResponse struct {
	OwnerKey string           `json:"ownerKey"`
	Balances map[string]int64 `json:"balances"`
}
