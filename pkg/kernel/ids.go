package kernel

import "strings"

// EnterpriseID identifies a tenant enterprise (the "eid" across all records).
type EnterpriseID string

func NewEnterpriseID(id string) EnterpriseID { return EnterpriseID(id) }
func (e EnterpriseID) String() string        { return string(e) }
func (e EnterpriseID) IsEmpty() bool         { return string(e) == "" }

// Username is a globally unique, case-insensitive user identifier.
// It is always lower-cased before storage or lookup.
type Username string

func NewUsername(u string) Username {
	return Username(strings.ToLower(strings.TrimSpace(u)))
}

func (u Username) String() string { return string(u) }
func (u Username) IsEmpty() bool  { return string(u) == "" }

// MobileNumber is an E.164 phone number used as the OTP record key.
type MobileNumber string

func (m MobileNumber) String() string { return string(m) }

// RiderUsername synthesizes the authentication username for the
// passwordless rider class from its mobile number.
func (m MobileNumber) RiderUsername() Username {
	return Username(string(m) + "@lsp-rider.local")
}
