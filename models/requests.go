package models

// ConfirmReceiptRequest carries the link parameters of a receipt confirmation.
type ConfirmReceiptRequest struct {
	OrderID string `form:"orderId" json:"orderId" binding:"required"`
	Token   string `form:"token" json:"token" binding:"required"`
}

// ConfirmReceiptResponse is the fixed response shape of the confirmation endpoint.
type ConfirmReceiptResponse struct {
	OK      bool   `json:"ok"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AdminStatusRequest is the body of an admin status change.
type AdminStatusRequest struct {
	Status       OrderStatus `json:"status" binding:"required,order_status"`
	TrackingCode string      `json:"tracking_code" binding:"omitempty,max=64"`
	ServiceType  string      `json:"service_type" binding:"omitempty,max=32"`
}

// StatusChangedEvent is published to the notification topic on every status change.
type StatusChangedEvent struct {
	EventType       string `json:"event_type"`
	OrderID         string `json:"order_id"`
	CustomerEmail   string `json:"customer_email"`
	CustomerName    string `json:"customer_name"`
	OldStatus       string `json:"old_status"`
	NewStatus       string `json:"new_status"`
	TrackingCode    string `json:"tracking_code,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
	Timestamp       string `json:"timestamp"`
}
