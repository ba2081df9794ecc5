package enroll

import (
	"net/http"
	"strconv"
	"time"

	"github.com/beejcap/lsp-auth/pkg/errx"
	"github.com/beejcap/lsp-auth/pkg/kernel"
	"github.com/beejcap/lsp-auth/pkg/store"
)

// ============================================================================
// Enterprise Types
// ============================================================================

// EnterpriseType is the fixed tenant class enum.
type EnterpriseType string

const (
	TypeSuperadmin EnterpriseType = "superadmin"
	TypeSupplier   EnterpriseType = "supplier"
	TypeRetailer   EnterpriseType = "retailer"
	TypeFinancier  EnterpriseType = "financier"
	TypeLsp        EnterpriseType = "lsp"
)

// ParseEnterpriseType validates the raw value against the enum.
func ParseEnterpriseType(raw string) (EnterpriseType, error) {
	switch t := EnterpriseType(raw); t {
	case TypeSuperadmin, TypeSupplier, TypeRetailer, TypeFinancier, TypeLsp:
		return t, nil
	default:
		return "", ErrInvalidEnterpriseType().WithDetail("enterprise_type", raw)
	}
}

func (t EnterpriseType) String() string { return string(t) }

// AdminRole is the canonical role of the enterprise's creator.
func (t EnterpriseType) AdminRole() string { return string(t) + "_admin" }

// ============================================================================
// Entities
// ============================================================================

// Enterprise is the canonical tenant record. Exactly one exists per eid.
type Enterprise struct {
	Eid            kernel.EnterpriseID `json:"eid"`
	EnterpriseType EnterpriseType      `json:"enterprise_type"`
	BusinessName   string              `json:"business_name"`
	Admin          kernel.Username     `json:"admin"`
	CreateDatetime time.Time           `json:"create_datetime"`
	EmailVerified  bool                `json:"email_verified"`
}

// AuthProfile is the per-username authentication record. It is denormalized
// into the enterprise-member index, which must never diverge from it.
type AuthProfile struct {
	Eid              kernel.EnterpriseID `json:"eid"`
	Username         kernel.Username     `json:"username"`
	EnterpriseType   EnterpriseType      `json:"enterprise_type"`
	Role             string              `json:"role"`
	CreateDatetime   time.Time           `json:"create_datetime"`
	ConfirmedByAdmin bool                `json:"isConfirmedByAdmin"`
}

// ============================================================================
// Record Key Scheme
// ============================================================================

const (
	pkAuthentication = "Authentication"
	pkEnterprise     = "Enterprise"
)

// ProfileKey addresses the authentication profile of one username.
func ProfileKey(username kernel.Username) store.Key {
	return store.Key{PK: pkAuthentication, SK: "Username#" + username.String() + "#Profile"}
}

// MobileKey addresses the OTP record of one mobile number.
func MobileKey(mobile kernel.MobileNumber) store.Key {
	return store.Key{PK: pkAuthentication, SK: "Mobile#" + mobile.String()}
}

// TypeIndexKey addresses the enterprise record under its type index.
func TypeIndexKey(t EnterpriseType, eid kernel.EnterpriseID) store.Key {
	return store.Key{PK: pkEnterprise, SK: "EnterpriseType#" + t.String() + ":Eid#" + eid.String()}
}

// ProfileIndexKey addresses the enterprise record under its profile index.
func ProfileIndexKey(eid kernel.EnterpriseID) store.Key {
	return store.Key{PK: pkEnterprise, SK: "Profile:Eid#" + eid.String()}
}

// EnterpriseProfilePrefix is the sort-key prefix enumerating all enterprise
// profile records.
const EnterpriseProfilePrefix = "Profile:Eid#"

// MemberKey addresses the enterprise-member index entry of one username.
func MemberKey(eid kernel.EnterpriseID, username kernel.Username) store.Key {
	return store.Key{PK: "Eid#" + eid.String(), SK: "Username#" + username.String()}
}

// MemberPK is the partition holding all member index entries of one
// enterprise.
func MemberPK(eid kernel.EnterpriseID) string {
	return "Eid#" + eid.String()
}

// ============================================================================
// Record Marshalling
// ============================================================================

// Stored attribute names. The tri-state flags are stored as strings
// ("false"/"true", "no"/"yes") matching the persisted record scheme.
const (
	attrEid              = "eid"
	attrEnterpriseType   = "enterprise_type"
	attrBusinessName     = "business_name"
	attrAdmin            = "admin"
	attrCreateDatetime   = "create_datetime"
	attrEmailVerified    = "email_verified"
	attrUsername         = "username"
	attrRole             = "role"
	attrConfirmedByAdmin = "isConfirmedByAdmin"
)

// AttrConfirmedByAdmin is exported for transactional consent updates.
const AttrConfirmedByAdmin = attrConfirmedByAdmin

// EnterpriseAttributes renders the enterprise entity into record attributes.
func EnterpriseAttributes(e Enterprise) store.Attributes {
	emailVerified := "no"
	if e.EmailVerified {
		emailVerified = "yes"
	}
	return store.Attributes{
		attrEid:            e.Eid.String(),
		attrEnterpriseType: e.EnterpriseType.String(),
		attrBusinessName:   e.BusinessName,
		attrAdmin:          e.Admin.String(),
		attrCreateDatetime: strconv.FormatInt(e.CreateDatetime.UnixMilli(), 10),
		attrEmailVerified:  emailVerified,
	}
}

// ProfileAttributes renders the authentication profile into record
// attributes.
func ProfileAttributes(p AuthProfile) store.Attributes {
	return store.Attributes{
		attrEid:              p.Eid.String(),
		attrUsername:         p.Username.String(),
		attrEnterpriseType:   p.EnterpriseType.String(),
		attrRole:             p.Role,
		attrCreateDatetime:   strconv.FormatInt(p.CreateDatetime.UnixMilli(), 10),
		attrConfirmedByAdmin: strconv.FormatBool(p.ConfirmedByAdmin),
	}
}

// ParseEnterprise reads an enterprise entity back from a record.
func ParseEnterprise(rec *store.Record) (*Enterprise, error) {
	if rec == nil {
		return nil, ErrEnterpriseNotFound()
	}
	attr := rec.Attr
	if attr[attrEid] == "" || attr[attrEnterpriseType] == "" {
		return nil, ErrRecordIncomplete().
			WithDetail("pk", rec.Key.PK).
			WithDetail("sk", rec.Key.SK)
	}

	return &Enterprise{
		Eid:            kernel.EnterpriseID(attr[attrEid]),
		EnterpriseType: EnterpriseType(attr[attrEnterpriseType]),
		BusinessName:   attr[attrBusinessName],
		Admin:          kernel.Username(attr[attrAdmin]),
		CreateDatetime: parseMillis(attr[attrCreateDatetime]),
		EmailVerified:  attr[attrEmailVerified] == "yes",
	}, nil
}

// ParseProfile reads an authentication profile back from a record.
func ParseProfile(rec *store.Record) (*AuthProfile, error) {
	if rec == nil {
		return nil, ErrUserNotFound()
	}
	attr := rec.Attr
	if attr[attrEid] == "" || attr[attrEnterpriseType] == "" || attr[attrRole] == "" {
		return nil, ErrRecordIncomplete().
			WithDetail("pk", rec.Key.PK).
			WithDetail("sk", rec.Key.SK)
	}

	return &AuthProfile{
		Eid:              kernel.EnterpriseID(attr[attrEid]),
		Username:         kernel.Username(attr[attrUsername]),
		EnterpriseType:   EnterpriseType(attr[attrEnterpriseType]),
		Role:             attr[attrRole],
		CreateDatetime:   parseMillis(attr[attrCreateDatetime]),
		ConfirmedByAdmin: attr[attrConfirmedByAdmin] == "true",
	}, nil
}

func parseMillis(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("ENROLL")

var (
	CodeMissingFields         = ErrRegistry.Register("MISSING_FIELDS", errx.TypeValidation, http.StatusBadRequest, "Email, password, enterprise_type and clientId are required")
	CodeBusinessNameRequired  = ErrRegistry.Register("BUSINESS_NAME_REQUIRED", errx.TypeValidation, http.StatusBadRequest, "business_name is required")
	CodeInvalidEnterpriseType = ErrRegistry.Register("INVALID_ENTERPRISE_TYPE", errx.TypeValidation, http.StatusBadRequest, "Invalid enterprise type. Supported types: superadmin, supplier, retailer, financier, lsp")
	CodeUserNotFound          = ErrRegistry.Register("USER_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User not found - Please signup again")
	CodeEnterpriseNotFound    = ErrRegistry.Register("ENTERPRISE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Enterprise not found")
	CodeRecordIncomplete      = ErrRegistry.Register("RECORD_INCOMPLETE", errx.TypeInternal, http.StatusInternalServerError, "User details not found")
	CodeNotConfirmed          = ErrRegistry.Register("NOT_CONFIRMED", errx.TypeAuthorization, http.StatusForbidden, "User is not confirmed. Please verify your email.")
	CodeNotApprovedByAdmin    = ErrRegistry.Register("NOT_APPROVED_BY_ADMIN", errx.TypeAuthorization, http.StatusForbidden, "User is not confirmed by admin")
)

func ErrMissingFields() *errx.Error         { return ErrRegistry.New(CodeMissingFields) }
func ErrBusinessNameRequired() *errx.Error  { return ErrRegistry.New(CodeBusinessNameRequired) }
func ErrInvalidEnterpriseType() *errx.Error { return ErrRegistry.New(CodeInvalidEnterpriseType) }
func ErrUserNotFound() *errx.Error          { return ErrRegistry.New(CodeUserNotFound) }
func ErrEnterpriseNotFound() *errx.Error    { return ErrRegistry.New(CodeEnterpriseNotFound) }
func ErrRecordIncomplete() *errx.Error      { return ErrRegistry.New(CodeRecordIncomplete) }
func ErrNotConfirmed() *errx.Error          { return ErrRegistry.New(CodeNotConfirmed) }
func ErrNotApprovedByAdmin() *errx.Error    { return ErrRegistry.New(CodeNotApprovedByAdmin) }
