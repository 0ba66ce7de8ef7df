package models

import "time"

// Platform identifies a network device family.
type Platform string

const (
	PlatformIOS      Platform = "ios"
	PlatformNXOS     Platform = "nxos"
	PlatformEOS      Platform = "eos"
	PlatformDellOS10 Platform = "dellos10"
	PlatformPANOS    Platform = "panos"
	PlatformFortiOS  Platform = "fortios"
)

// Valid returns true if the platform is one of the supported families.
func (p Platform) Valid() bool {
	switch p {
	case PlatformIOS, PlatformNXOS, PlatformEOS, PlatformDellOS10, PlatformPANOS, PlatformFortiOS:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (p Platform) String() string {
	return string(p)
}

// IsAPIDevice reports whether the platform is backed up over its HTTPS
// management API rather than CLI-over-SSH.
func (p Platform) IsAPIDevice() bool {
	return p == PlatformPANOS || p == PlatformFortiOS
}

// DriverID maps the platform to its SSH driver identifier. API platforms
// carry one too, but it is never used to open a connection.
func (p Platform) DriverID() string {
	switch p {
	case PlatformIOS:
		return "cisco_ios"
	case PlatformNXOS:
		return "cisco_nxos"
	case PlatformEOS:
		return "arista_eos"
	case PlatformDellOS10:
		return "dell_os10"
	case PlatformPANOS:
		return "paloaltonetworks_panos"
	case PlatformFortiOS:
		return "fortinet_fortios"
	default:
		return string(p)
	}
}

// Device is a network device inventory entry. (hostname, site_id) is unique.
type Device struct {
	ID           int64     `json:"id" db:"id"`
	Hostname     string    `json:"hostname" db:"hostname"`
	IP           string    `json:"ip" db:"ip"`
	Platform     Platform  `json:"platform" db:"platform"`
	SiteID       int64     `json:"site_id" db:"site_id"`
	CredentialID *int64    `json:"credential_id,omitempty" db:"credential_id"`
	Enabled      bool      `json:"enabled" db:"enabled"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
