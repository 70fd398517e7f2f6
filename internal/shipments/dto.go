package shipments

// CreateShipmentRequest is the draft-creation payload.
type CreateShipmentRequest struct {
	Lines []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// LineRequest carries one shipment line.
type LineRequest struct {
	ReceiptID string  `json:"receiptId" validate:"required"`
	QtyKg     float64 `json:"qtyKg"`
}

// ShipmentResponse is the document view returned by draft creation and reads.
type ShipmentResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	ShipmentNo string `json:"shipmentNo,omitempty"`
	Lines      []Line `json:"lines"`
}
