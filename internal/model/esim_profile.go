package model

import "time"

// ESIMProfile is the local record of an issued eSIM, keyed by the
// provider's esimTranNo.
type ESIMProfile struct {
	EsimTranNo  string    `db:"esim_tran_no"  json:"esim_tran_no"`
	OrderID     string    `db:"order_id"      json:"order_id"`
	CustomerID  int64     `db:"customer_id"   json:"customer_id"`
	ICCID       string    `db:"iccid"         json:"iccid"`
	Status      string    `db:"status"        json:"status"`
	TotalVolume int64     `db:"total_volume"  json:"total_volume"`
	DataUsage   int64     `db:"data_usage"    json:"data_usage"`
	ExpiredTime string    `db:"expired_time"  json:"expired_time,omitempty"`
	CreatedAt   time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"    json:"updated_at"`
}

// UsageSnapshot is one usage reading stored in ClickHouse.
type UsageSnapshot struct {
	EsimTranNo string    `db:"esim_tran_no" json:"esim_tran_no"`
	CustomerID int64     `db:"customer_id"  json:"customer_id"`
	ICCID      string    `db:"iccid"        json:"iccid"`
	DataUsage  int64     `db:"data_usage"   json:"data_usage"`
	TotalData  int64     `db:"total_data"   json:"total_data"`
	ObservedAt time.Time `db:"observed_at"  json:"observed_at"`
}
