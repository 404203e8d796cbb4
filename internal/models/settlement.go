package models

// SettlementResult counts what one end-of-auction run did. Items another
// run had already closed are counted in none of the fields.
type SettlementResult struct {
	Sold     int `json:"sold"`
	Unsold   int `json:"unsold"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}
