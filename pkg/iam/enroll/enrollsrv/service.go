package enrollsrv

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/beejcap/lsp-auth/pkg/iam/enroll"
	"github.com/beejcap/lsp-auth/pkg/iam/roles"
	"github.com/beejcap/lsp-auth/pkg/idp"
	"github.com/beejcap/lsp-auth/pkg/kernel"
	"github.com/beejcap/lsp-auth/pkg/logx"
	"github.com/beejcap/lsp-auth/pkg/store"
)

// Service is the enrollment orchestrator. It owns the Enterprise,
// Authentication Profile and Enterprise-Member Index records; all writes to
// them go through its transactional fan-out.
type Service struct {
	store    store.Store
	provider idp.IdentityProvider
	claims   *roles.ClaimsTable
	now      func() time.Time
}

// NewService wires the orchestrator. now is overridable for tests.
func NewService(st store.Store, provider idp.IdentityProvider, claims *roles.ClaimsTable) *Service {
	return &Service{
		store:    st,
		provider: provider,
		claims:   claims,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Test helper.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ============================================================================
// Signup
// ============================================================================

// SignupRequest is the enrollment input. Eid present means "add an internal
// user to an existing enterprise"; absent means "found a new enterprise".
// CallerEid is the verified eid claim of the authenticated caller, empty on
// public signups.
type SignupRequest struct {
	Email          string
	Password       string
	Username       string
	EnterpriseType string
	BusinessName   string
	ClientID       string
	Eid            string
	Role           string
	CallerEid      kernel.EnterpriseID
}

// SignupResult reports the enterprise the new user was bound to.
type SignupResult struct {
	Eid      kernel.EnterpriseID `json:"eid"`
	Username kernel.Username     `json:"username"`
	Role     string              `json:"role"`
}

// Enroll provisions the denormalized record set for a signup and then
// delegates credential creation to the identity provider. The four store
// writes commit atomically before the provider is called; a provider failure
// leaves the records in place for manual reconciliation.
func (s *Service) Enroll(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	if req.Email == "" || req.Password == "" || req.EnterpriseType == "" || req.ClientID == "" {
		return nil, enroll.ErrMissingFields()
	}
	if req.Username == "" {
		req.Username = strings.ToLower(req.Email)
	}
	if req.Eid == "" && req.BusinessName == "" {
		return nil, enroll.ErrBusinessNameRequired()
	}

	enterpriseType, err := enroll.ParseEnterpriseType(req.EnterpriseType)
	if err != nil {
		return nil, err
	}

	username := kernel.NewUsername(req.Username)
	targetEid := kernel.EnterpriseID(req.Eid)

	role, err := s.claims.Resolve(enterpriseType.String(), targetEid, req.Role, req.CallerEid)
	if err != nil {
		return nil, err
	}

	// A repeat signup for an already-known username binds to its original
	// enterprise instead of founding a new one.
	eid := targetEid
	if eid.IsEmpty() {
		eid = kernel.EnterpriseID(uuid.NewString())
	}
	if existing, err := s.store.Get(ctx, enroll.ProfileKey(username)); err != nil {
		return nil, err
	} else if existing != nil && existing.Attr["eid"] != "" {
		eid = kernel.EnterpriseID(existing.Attr["eid"])
	}

	now := s.now()
	enterprise := enroll.Enterprise{
		Eid:            eid,
		EnterpriseType: enterpriseType,
		BusinessName:   req.BusinessName,
		Admin:          username,
		CreateDatetime: now,
		EmailVerified:  false,
	}
	// Joining an existing enterprise re-asserts its index records; the
	// stored entity wins over the sparse join request.
	if rec, err := s.store.Get(ctx, enroll.ProfileIndexKey(eid)); err != nil {
		return nil, err
	} else if rec != nil {
		if existing, err := enroll.ParseEnterprise(rec); err == nil {
			enterprise = *existing
		}
	}
	profile := enroll.AuthProfile{
		Eid:              eid,
		Username:         username,
		EnterpriseType:   enterpriseType,
		Role:             role,
		CreateDatetime:   now,
		ConfirmedByAdmin: false,
	}

	enterpriseAttrs := enroll.EnterpriseAttributes(enterprise)
	profileAttrs := enroll.ProfileAttributes(profile)

	// All four denormalized records commit or none do; a partial write would
	// orphan the username or leave an enterprise-less profile behind.
	ops := []store.WriteOp{
		{Kind: store.OpPut, Key: enroll.TypeIndexKey(enterpriseType, eid), Set: enterpriseAttrs},
		{Kind: store.OpPut, Key: enroll.ProfileIndexKey(eid), Set: enterpriseAttrs},
		{Kind: store.OpPut, Key: enroll.ProfileKey(username), Set: profileAttrs},
		{Kind: store.OpPut, Key: enroll.MemberKey(eid, username), Set: profileAttrs},
	}
	if err := s.store.TransactWrite(ctx, ops); err != nil {
		return nil, err
	}

	err = s.provider.Register(ctx, idp.RegisterInput{
		ClientID: req.ClientID,
		Username: username,
		Email:    req.Email,
		Password: req.Password,
		Attributes: map[string]string{
			idp.AttrConfirmedByAdmin: "false",
			idp.AttrEnterpriseType:   enterpriseType.String(),
			idp.AttrRole:             role,
			idp.AttrEid:              eid.String(),
		},
	})
	if err != nil {
		// The committed records stay; reconciliation is an operator concern.
		logx.WithFields(logx.Fields{
			"username": username.String(),
			"eid":      eid.String(),
		}).WithError(err).Error("identity provider registration failed after store commit")
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"username":        username.String(),
		"eid":             eid.String(),
		"role":            role,
		"enterprise_type": enterpriseType.String(),
	}).Info("user enrolled")

	return &SignupResult{Eid: eid, Username: username, Role: role}, nil
}

// ============================================================================
// Provider delegations (password path)
// ============================================================================

// ConfirmSignUp completes email verification at the provider.
func (s *Service) ConfirmSignUp(ctx context.Context, clientID string, username kernel.Username, code string) error {
	return s.provider.ConfirmRegistration(ctx, clientID, username, code)
}

// ResendCode re-sends the provider's verification code.
func (s *Service) ResendCode(ctx context.Context, clientID string, username kernel.Username) error {
	return s.provider.ResendCode(ctx, clientID, username)
}

// ForgotPassword starts the provider's reset flow.
func (s *Service) ForgotPassword(ctx context.Context, clientID string, username kernel.Username) error {
	return s.provider.ForgotPassword(ctx, clientID, username)
}

// ConfirmForgotPassword completes the provider's reset flow.
func (s *Service) ConfirmForgotPassword(ctx context.Context, clientID string, username kernel.Username, password, code string) error {
	return s.provider.ConfirmForgotPassword(ctx, clientID, username, password, code)
}

// LoginResult is the password-path token envelope returned to clients.
type LoginResult struct {
	JWT            string              `json:"jwt"`
	Eid            kernel.EnterpriseID `json:"eid"`
	Username       kernel.Username     `json:"username"`
	EnterpriseType string              `json:"enterprise_type"`
	DisplayName    string              `json:"display_name"`
	Role           string              `json:"role"`
}

// Login authenticates a password user against the provider. The provider
// must consider the registration confirmed and an admin must have approved
// the user before tokens are released.
func (s *Service) Login(ctx context.Context, clientID string, username kernel.Username, password string) (*LoginResult, error) {
	if username.IsEmpty() || password == "" || clientID == "" {
		return nil, enroll.ErrMissingFields()
	}

	user, err := s.provider.AdminGetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.Confirmed() {
		return nil, enroll.ErrNotConfirmed()
	}

	rec, err := s.store.Get(ctx, enroll.ProfileKey(username))
	if err != nil {
		return nil, err
	}
	profile, err := enroll.ParseProfile(rec)
	if err != nil {
		return nil, err
	}

	if user.Attributes[idp.AttrConfirmedByAdmin] != "true" {
		return nil, enroll.ErrNotApprovedByAdmin()
	}

	auth, err := s.provider.PasswordAuth(ctx, clientID, username, password)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		JWT:            auth.IDToken,
		Eid:            profile.Eid,
		Username:       username,
		EnterpriseType: profile.EnterpriseType.String(),
		DisplayName:    displayName(profile.EnterpriseType, username),
		Role:           profile.Role,
	}, nil
}

// displayName renders "<Type>-<User>" with both parts capitalized, the user
// part being the local portion of the email.
func displayName(t enroll.EnterpriseType, username kernel.Username) string {
	local, _, _ := strings.Cut(username.String(), "@")
	return capitalize(t.String()) + "-" + capitalize(local)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ============================================================================
// Admin consent and deletion
// ============================================================================

// ConfirmInternalUser records admin consent on both the authentication
// profile and the member index in one transaction, then mirrors the flag to
// the identity provider so the user can authenticate.
func (s *Service) ConfirmInternalUser(ctx context.Context, eid kernel.EnterpriseID, username kernel.Username) error {
	consent := store.Attributes{enroll.AttrConfirmedByAdmin: "true"}
	ops := []store.WriteOp{
		{Kind: store.OpUpdate, Key: enroll.ProfileKey(username), Set: consent},
		{Kind: store.OpUpdate, Key: enroll.MemberKey(eid, username), Set: consent},
	}
	if err := s.store.TransactWrite(ctx, ops); err != nil {
		return err
	}

	if err := s.provider.AdminUpdateAttributes(ctx, username, map[string]string{
		idp.AttrConfirmedByAdmin: "true",
	}); err != nil {
		logx.WithFields(logx.Fields{
			"username": username.String(),
			"eid":      eid.String(),
		}).WithError(err).Error("provider consent update failed after store commit")
		return err
	}

	logx.WithFields(logx.Fields{
		"username": username.String(),
		"eid":      eid.String(),
	}).Info("user confirmed by admin")
	return nil
}

// DeleteUser removes the member index and authentication profile in one
// transaction, then deletes the provider credential. A provider failure
// leaves the credential live with no local records; surfaced for manual
// cleanup.
func (s *Service) DeleteUser(ctx context.Context, eid kernel.EnterpriseID, username kernel.Username) error {
	ops := []store.WriteOp{
		{Kind: store.OpDelete, Key: enroll.MemberKey(eid, username)},
		{Kind: store.OpDelete, Key: enroll.ProfileKey(username)},
	}
	if err := s.store.TransactWrite(ctx, ops); err != nil {
		return err
	}

	if err := s.provider.AdminDeleteUser(ctx, username); err != nil {
		logx.WithFields(logx.Fields{
			"username": username.String(),
			"eid":      eid.String(),
		}).WithError(err).Error("provider credential deletion failed after store delete")
		return err
	}

	logx.WithFields(logx.Fields{
		"username": username.String(),
		"eid":      eid.String(),
	}).Info("user deleted")
	return nil
}

// DeleteEnterprise removes both enterprise index records in one transaction.
// Member records and their credentials are deleted via DeleteUser per member
// beforehand by the caller (the cleanup tooling drives this).
func (s *Service) DeleteEnterprise(ctx context.Context, eid kernel.EnterpriseID, enterpriseType enroll.EnterpriseType) error {
	ops := []store.WriteOp{
		{Kind: store.OpDelete, Key: enroll.TypeIndexKey(enterpriseType, eid)},
		{Kind: store.OpDelete, Key: enroll.ProfileIndexKey(eid)},
	}
	if err := s.store.TransactWrite(ctx, ops); err != nil {
		return err
	}

	logx.WithFields(logx.Fields{
		"eid":             eid.String(),
		"enterprise_type": enterpriseType.String(),
	}).Info("enterprise deleted")
	return nil
}

// GetAllEnterprises lists every enterprise via the profile index.
func (s *Service) GetAllEnterprises(ctx context.Context) ([]enroll.Enterprise, error) {
	records, err := s.store.Query(ctx, "Enterprise", enroll.EnterpriseProfilePrefix)
	if err != nil {
		return nil, err
	}

	enterprises := make([]enroll.Enterprise, 0, len(records))
	for i := range records {
		e, err := enroll.ParseEnterprise(&records[i])
		if err != nil {
			logx.WithField("sk", records[i].Key.SK).WithError(err).Warn("skipping malformed enterprise record")
			continue
		}
		enterprises = append(enterprises, *e)
	}
	return enterprises, nil
}

// ============================================================================
// Membership check (consumed by the OTP lifecycle manager)
// ============================================================================

// CheckConfirmedMember verifies that username is an admin-confirmed member
// of the enterprise. Returns nil on success.
func (s *Service) CheckConfirmedMember(ctx context.Context, eid kernel.EnterpriseID, username kernel.Username) error {
	rec, err := s.store.Get(ctx, enroll.MemberKey(eid, username))
	if err != nil {
		return err
	}
	if rec == nil {
		return enroll.ErrUserNotFound().
			WithDetail("eid", eid.String()).
			WithStatus(403)
	}
	if rec.Attr[enroll.AttrConfirmedByAdmin] != "true" {
		return enroll.ErrNotApprovedByAdmin().WithDetail("eid", eid.String())
	}
	return nil
}

// GetProfile loads the authentication profile of one username.
func (s *Service) GetProfile(ctx context.Context, username kernel.Username) (*enroll.AuthProfile, error) {
	rec, err := s.store.Get(ctx, enroll.ProfileKey(username))
	if err != nil {
		return nil, err
	}
	return enroll.ParseProfile(rec)
}
