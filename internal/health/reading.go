package health

// Reading is one normalized observation.
type Reading struct {
	Category Category `json:"category"`
	Name     string   `json:"name"`
	// Value is nil when the endpoint reported no numeric value.
	Value    *float64 `json:"value"`
	Unit     string   `json:"unit,omitempty"`
	Severity Severity `json:"severity"`
	// VendorKey identifies the payload member the reading came from.
	VendorKey string `json:"vendor_key,omitempty"`
	// RawHealth is the vendor's health string before mapping.
	RawHealth string `json:"raw_health,omitempty"`
}

// Float returns a pointer to v for Reading.Value.
func Float(v float64) *float64 {
	return &v
}

func (r Reading) clone() Reading {
	if r.Value != nil {
		r.Value = Float(*r.Value)
	}

	return r
}
