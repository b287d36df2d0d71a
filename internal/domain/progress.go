package domain

// Progress is the funding state of a goal. It is recomputed on demand and never stored.
type Progress struct {
	Raised     int64   `json:"raised"`
	Target     int64   `json:"target"`
	Percentage float64 `json:"percentage"`
	ZapCount   int     `json:"zap_count"`
	IsClosed   bool    `json:"is_closed"`
}
