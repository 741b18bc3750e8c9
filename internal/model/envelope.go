package model

// Envelope is the payload published to Kafka (via Debezium outbox SMT).
type Envelope struct {
	OrderID     string `json:"order_id"`    // order ULID, also the upstream transactionId
	CustomerID  int64  `json:"customer_id"` // customer id
	PackageCode string `json:"package_code"`
	Count       int    `json:"count"`
	UnitPrice   int64  `json:"unit_price"`
	Amount      int64  `json:"amount"`
}
