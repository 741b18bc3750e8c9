package model

import "time"

// WalletAccount holds a customer's prepaid credit in provider price units.
type WalletAccount struct {
	CustomerID int64     `db:"customer_id" json:"customer_id"`
	Balance    int64     `db:"balance"     json:"balance"`
	Reserved   int64     `db:"reserved"    json:"reserved"`
	UpdatedAt  time.Time `db:"updated_at"  json:"updated_at"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}
