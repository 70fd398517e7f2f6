package cartons

// CreateDocumentRequest is the draft-creation payload shared by purchases and
// issues.
type CreateDocumentRequest struct {
	Items []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ItemRequest carries one document line.
type ItemRequest struct {
	ItemID string `json:"itemId" validate:"required"`
	Qty    int64  `json:"qty"`
}

// DocumentResponse is the document view returned by draft creation and reads.
type DocumentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	DocNo  string `json:"docNo,omitempty"`
	Items  []Item `json:"items"`
}

// BalanceResponse is one carton item's stock view.
type BalanceResponse struct {
	ItemID string `json:"itemId"`
	Qty    int64  `json:"qty"`
}
