package models

// Service is one entry of the clinic service catalog.
type Service struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	SortOrder   int64  `yaml:"sort_order" json:"sort_order"`
}

// ClinicInfo is the contact card data shown next to the contact form.
type ClinicInfo struct {
	Name           string   `json:"name"`
	Phone          string   `json:"phone"`
	EmergencyPhone string   `json:"emergency_phone"`
	Email          string   `json:"email"`
	Address        string   `json:"address"`
	Hours          []string `json:"hours"`
	PhoneLink      string   `json:"phone_link"`
	EmergencyLink  string   `json:"emergency_link"`
	EmailLink      string   `json:"email_link"`
	MapsLink       string   `json:"maps_link"`
}
