package receipts

// CreateReceiptRequest is the draft-creation payload.
type CreateReceiptRequest struct {
	FarmID string  `json:"farmId" validate:"required"`
	QtyKg  float64 `json:"qtyKg"`
}

// ReceiptResponse is the document view returned by draft creation and reads.
type ReceiptResponse struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	ReceiptNo string  `json:"receiptNo,omitempty"`
	FarmID    string  `json:"farmId"`
	QtyKg     float64 `json:"qtyKg"`
}

// BalanceResponse is one receipt's remaining-weight view.
type BalanceResponse struct {
	ReceiptID   string  `json:"receiptId"`
	RemainingKg float64 `json:"remainingKg"`
}
