package models

import "time"

type Debtor struct {
	ID            string     `json:"id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	CellPhone     *string    `json:"cell_phone,omitempty"`
	Birthday      *time.Time `json:"birthday,omitempty"`
	Address       string     `json:"address"`
	City          string     `json:"city"`
	State         string     `json:"state"`
	Zip           string     `json:"zip"`
	LoanNumber    string     `json:"loan_number"`
	AccountNumber string     `json:"account_number"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}
