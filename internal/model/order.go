package model

import "time"

type OrderStatus string

const (
	OrderQueued OrderStatus = "queued"
	OrderPlaced OrderStatus = "placed"
	OrderFailed OrderStatus = "failed"
)

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Valid() bool {
	return s == OrderQueued || s == OrderPlaced || s == OrderFailed
}

// Order is one customer purchase of Count profiles of a single package.
// ID doubles as the upstream transactionId.
type Order struct {
	ID          string      `db:"id"                 json:"id"`
	CustomerID  int64       `db:"customer_id"        json:"customer_id"`
	PackageCode string      `db:"package_code"       json:"package_code"`
	Count       int         `db:"count"              json:"count"`
	UnitPrice   int64       `db:"unit_price"         json:"unit_price"`
	Amount      int64       `db:"amount"             json:"amount"`
	Status      OrderStatus `db:"status"             json:"status"`
	ProviderNo  *string     `db:"provider_order_no"  json:"provider_order_no,omitempty"`
	Error       *string     `db:"error"              json:"error,omitempty"`
	CreatedAt   time.Time   `db:"created_at"         json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"         json:"updated_at"`
}
