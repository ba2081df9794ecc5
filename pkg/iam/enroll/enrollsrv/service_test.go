package enrollsrv_test

import (
	"context"
	"testing"

	"github.com/beejcap/lsp-auth/pkg/iam/enroll"
	"github.com/beejcap/lsp-auth/pkg/iam/enroll/enrollsrv"
	"github.com/beejcap/lsp-auth/pkg/iam/roles"
	"github.com/beejcap/lsp-auth/pkg/idp"
	"github.com/beejcap/lsp-auth/pkg/kernel"
	"github.com/beejcap/lsp-auth/pkg/store"
	"github.com/beejcap/lsp-auth/pkg/store/storememory"
)

// --- fakes ---

type fakeProvider struct {
	registered  []idp.RegisterInput
	registerErr error

	users   map[kernel.Username]*idp.User
	authErr error

	updated map[kernel.Username]map[string]string
	deleted []kernel.Username
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		users:   make(map[kernel.Username]*idp.User),
		updated: make(map[kernel.Username]map[string]string),
	}
}

func (f *fakeProvider) Register(_ context.Context, in idp.RegisterInput) error {
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registered = append(f.registered, in)
	return nil
}

func (f *fakeProvider) ConfirmRegistration(_ context.Context, _ string, _ kernel.Username, _ string) error {
	return nil
}

func (f *fakeProvider) ResendCode(_ context.Context, _ string, _ kernel.Username) error {
	return nil
}

func (f *fakeProvider) PasswordAuth(_ context.Context, _ string, _ kernel.Username, _ string) (*idp.AuthResult, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &idp.AuthResult{IDToken: "provider-id-token", ExpiresIn: 3600}, nil
}

func (f *fakeProvider) ForgotPassword(_ context.Context, _ string, _ kernel.Username) error {
	return nil
}

func (f *fakeProvider) ConfirmForgotPassword(_ context.Context, _ string, _ kernel.Username, _, _ string) error {
	return nil
}

func (f *fakeProvider) AdminGetUser(_ context.Context, username kernel.Username) (*idp.User, error) {
	user, ok := f.users[username]
	if !ok {
		return nil, idp.ErrUserNotFound()
	}
	return user, nil
}

func (f *fakeProvider) AdminUpdateAttributes(_ context.Context, username kernel.Username, attrs map[string]string) error {
	f.updated[username] = attrs
	return nil
}

func (f *fakeProvider) AdminDeleteUser(_ context.Context, username kernel.Username) error {
	f.deleted = append(f.deleted, username)
	return nil
}

// failingStore rejects every transaction, everything else passes through.
type failingStore struct {
	*storememory.MemoryStore
}

func (f *failingStore) TransactWrite(_ context.Context, _ []store.WriteOp) error {
	return store.ErrTransactFailed()
}

func claimsTable(t *testing.T) *roles.ClaimsTable {
	t.Helper()
	tbl, err := roles.NewClaimsTable(map[string][]string{
		"supplier_admin":    {"supplier:manageUser"},
		"superadmin_admin":  {"superadmin:manage"},
		"supplier_sales_rm": {},
		"lsp_admin":         {},
		"lsp_rider":         {},
	})
	if err != nil {
		t.Fatalf("building claims table: %v", err)
	}
	return tbl
}

func newService(t *testing.T) (*enrollsrv.Service, *storememory.MemoryStore, *fakeProvider) {
	t.Helper()
	st := storememory.NewMemoryStore()
	provider := newFakeProvider()
	return enrollsrv.NewService(st, provider, claimsTable(t)), st, provider
}

func founderRequest() enrollsrv.SignupRequest {
	return enrollsrv.SignupRequest{
		Email:          "Admin@Acme.com",
		Password:       "s3cret!",
		EnterpriseType: "supplier",
		BusinessName:   "Acme Logistics",
		ClientID:       "client-1",
	}
}

// --- Enroll ---

func TestEnrollFounderCreatesAllRecords(t *testing.T) {
	svc, st, provider := newService(t)

	result, err := svc.Enroll(context.Background(), founderRequest())
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	if result.Role != "supplier_admin" {
		t.Fatalf("expected supplier_admin, got %s", result.Role)
	}
	if result.Username != "admin@acme.com" {
		t.Fatalf("username not lower-cased: %s", result.Username)
	}
	if st.Len() != 4 {
		t.Fatalf("expected 4 records, got %d", st.Len())
	}

	keys := []store.Key{
		enroll.TypeIndexKey(enroll.TypeSupplier, result.Eid),
		enroll.ProfileIndexKey(result.Eid),
		enroll.ProfileKey(result.Username),
		enroll.MemberKey(result.Eid, result.Username),
	}
	for _, k := range keys {
		rec, err := st.Get(context.Background(), k)
		if err != nil || rec == nil {
			t.Fatalf("record missing for %+v", k)
		}
	}

	if len(provider.registered) != 1 {
		t.Fatalf("expected one provider registration, got %d", len(provider.registered))
	}
	attrs := provider.registered[0].Attributes
	if attrs[idp.AttrConfirmedByAdmin] != "false" || attrs[idp.AttrEid] != result.Eid.String() || attrs[idp.AttrRole] != "supplier_admin" {
		t.Fatalf("provider attributes wrong: %v", attrs)
	}
}

func TestEnrollValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	missing := founderRequest()
	missing.Password = ""
	if _, err := svc.Enroll(ctx, missing); err == nil {
		t.Fatal("expected missing-fields error")
	}

	noBusiness := founderRequest()
	noBusiness.BusinessName = ""
	if _, err := svc.Enroll(ctx, noBusiness); err == nil {
		t.Fatal("expected business-name error")
	}

	badType := founderRequest()
	badType.EnterpriseType = "wholesaler"
	if _, err := svc.Enroll(ctx, badType); err == nil {
		t.Fatal("expected invalid-type error")
	}
}

func TestEnrollRepeatSignupBindsToOriginalEnterprise(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Enroll(ctx, founderRequest())
	if err != nil {
		t.Fatalf("first enroll failed: %v", err)
	}

	// Same username, no eid in the payload: no second enterprise is founded.
	second, err := svc.Enroll(ctx, founderRequest())
	if err != nil {
		t.Fatalf("repeat enroll failed: %v", err)
	}
	if second.Eid != first.Eid {
		t.Fatalf("repeat signup founded a new enterprise: %s vs %s", second.Eid, first.Eid)
	}
}

func TestEnrollInternalUserJoinsCallerEnterprise(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	founder, err := svc.Enroll(ctx, founderRequest())
	if err != nil {
		t.Fatalf("founder enroll failed: %v", err)
	}

	req := enrollsrv.SignupRequest{
		Email:          "sales@acme.com",
		Password:       "s3cret!",
		EnterpriseType: "supplier",
		ClientID:       "client-1",
		Eid:            founder.Eid.String(),
		Role:           "supplier_sales_rm",
		CallerEid:      founder.Eid,
	}
	result, err := svc.Enroll(ctx, req)
	if err != nil {
		t.Fatalf("internal enroll failed: %v", err)
	}
	if result.Eid != founder.Eid {
		t.Fatalf("internal user bound to wrong enterprise: %s", result.Eid)
	}
	if result.Role != "supplier_sales_rm" {
		t.Fatalf("expected explicit role, got %s", result.Role)
	}

	rec, _ := st.Get(ctx, enroll.MemberKey(founder.Eid, result.Username))
	if rec == nil {
		t.Fatal("member index record missing")
	}
}

func TestEnrollInternalUserTenantMismatch(t *testing.T) {
	svc, _, _ := newService(t)

	req := enrollsrv.SignupRequest{
		Email:          "sales@acme.com",
		Password:       "s3cret!",
		EnterpriseType: "supplier",
		ClientID:       "client-1",
		Eid:            "enterprise-a",
		Role:           "supplier_sales_rm",
		CallerEid:      "enterprise-b",
	}
	if _, err := svc.Enroll(context.Background(), req); err == nil {
		t.Fatal("expected tenant mismatch")
	}
}

func TestEnrollTransactFailureSkipsProvider(t *testing.T) {
	st := &failingStore{storememory.NewMemoryStore()}
	provider := newFakeProvider()
	svc := enrollsrv.NewService(st, provider, claimsTable(t))

	if _, err := svc.Enroll(context.Background(), founderRequest()); err == nil {
		t.Fatal("expected transact failure")
	}
	if len(provider.registered) != 0 {
		t.Fatal("provider must not be called when the store transaction fails")
	}
}

func TestEnrollProviderFailureKeepsRecords(t *testing.T) {
	svc, st, provider := newService(t)
	provider.registerErr = idp.ErrUsernameExists()

	if _, err := svc.Enroll(context.Background(), founderRequest()); err == nil {
		t.Fatal("expected provider error to surface")
	}
	if st.Len() != 4 {
		t.Fatalf("committed records must remain, got %d", st.Len())
	}
}

// --- Login ---

func seedConfirmedUser(t *testing.T, svc *enrollsrv.Service, provider *fakeProvider) (*enrollsrv.SignupResult, kernel.Username) {
	t.Helper()
	result, err := svc.Enroll(context.Background(), founderRequest())
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	provider.users[result.Username] = &idp.User{
		Username: result.Username,
		Status:   "CONFIRMED",
		Attributes: map[string]string{
			idp.AttrConfirmedByAdmin: "true",
		},
	}
	return result, result.Username
}

func TestLoginHappyPath(t *testing.T) {
	svc, _, provider := newService(t)
	result, username := seedConfirmedUser(t, svc, provider)

	login, err := svc.Login(context.Background(), "client-1", username, "s3cret!")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if login.JWT != "provider-id-token" {
		t.Fatalf("expected provider token, got %s", login.JWT)
	}
	if login.Eid != result.Eid {
		t.Fatalf("wrong eid: %s", login.Eid)
	}
	if login.DisplayName != "Supplier-Admin" {
		t.Fatalf("wrong display name: %s", login.DisplayName)
	}
}

func TestLoginRejectsUnconfirmedRegistration(t *testing.T) {
	svc, _, provider := newService(t)
	_, username := seedConfirmedUser(t, svc, provider)
	provider.users[username].Status = "UNCONFIRMED"

	if _, err := svc.Login(context.Background(), "client-1", username, "s3cret!"); err == nil {
		t.Fatal("expected not-confirmed error")
	}
}

func TestLoginRejectsWithoutAdminConsent(t *testing.T) {
	svc, _, provider := newService(t)
	_, username := seedConfirmedUser(t, svc, provider)
	provider.users[username].Attributes[idp.AttrConfirmedByAdmin] = "false"

	if _, err := svc.Login(context.Background(), "client-1", username, "s3cret!"); err == nil {
		t.Fatal("expected not-approved error")
	}
}

// --- Consent and deletion ---

func TestConfirmInternalUserUpdatesBothRecordsAndProvider(t *testing.T) {
	svc, st, provider := newService(t)
	ctx := context.Background()

	result, err := svc.Enroll(ctx, founderRequest())
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	if err := svc.ConfirmInternalUser(ctx, result.Eid, result.Username); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	for _, k := range []store.Key{
		enroll.ProfileKey(result.Username),
		enroll.MemberKey(result.Eid, result.Username),
	} {
		rec, _ := st.Get(ctx, k)
		if rec == nil || rec.Attr[enroll.AttrConfirmedByAdmin] != "true" {
			t.Fatalf("consent flag not set on %+v", k)
		}
	}

	if provider.updated[result.Username][idp.AttrConfirmedByAdmin] != "true" {
		t.Fatal("provider attribute not mirrored")
	}
}

func TestDeleteUserRemovesRecordsAndCredential(t *testing.T) {
	svc, st, provider := newService(t)
	ctx := context.Background()

	result, err := svc.Enroll(ctx, founderRequest())
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	if err := svc.DeleteUser(ctx, result.Eid, result.Username); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if rec, _ := st.Get(ctx, enroll.ProfileKey(result.Username)); rec != nil {
		t.Fatal("profile record not removed")
	}
	if rec, _ := st.Get(ctx, enroll.MemberKey(result.Eid, result.Username)); rec != nil {
		t.Fatal("member index record not removed")
	}
	if len(provider.deleted) != 1 || provider.deleted[0] != result.Username {
		t.Fatalf("provider credential not deleted: %v", provider.deleted)
	}
}

func TestDeleteEnterpriseRemovesIndexRecords(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	result, err := svc.Enroll(ctx, founderRequest())
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	if err := svc.DeleteEnterprise(ctx, result.Eid, enroll.TypeSupplier); err != nil {
		t.Fatalf("delete enterprise failed: %v", err)
	}
	if rec, _ := st.Get(ctx, enroll.TypeIndexKey(enroll.TypeSupplier, result.Eid)); rec != nil {
		t.Fatal("type index record not removed")
	}
	if rec, _ := st.Get(ctx, enroll.ProfileIndexKey(result.Eid)); rec != nil {
		t.Fatal("profile index record not removed")
	}
}

// --- Listings and membership ---

func TestGetAllEnterprises(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Enroll(ctx, founderRequest()); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	second := founderRequest()
	second.Email = "boss@other.com"
	second.BusinessName = "Other Corp"
	if _, err := svc.Enroll(ctx, second); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	enterprises, err := svc.GetAllEnterprises(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(enterprises) != 2 {
		t.Fatalf("expected 2 enterprises, got %d", len(enterprises))
	}
}

func TestCheckConfirmedMember(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	result, err := svc.Enroll(ctx, founderRequest())
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	if err := svc.CheckConfirmedMember(ctx, result.Eid, result.Username); err == nil {
		t.Fatal("unapproved member must not pass")
	}
	if err := svc.ConfirmInternalUser(ctx, result.Eid, result.Username); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if err := svc.CheckConfirmedMember(ctx, result.Eid, result.Username); err != nil {
		t.Fatalf("approved member rejected: %v", err)
	}
	if err := svc.CheckConfirmedMember(ctx, "other-eid", result.Username); err == nil {
		t.Fatal("membership must be scoped to the enterprise")
	}
}
