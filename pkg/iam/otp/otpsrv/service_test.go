package otpsrv_test

import (
	"context"
	"testing"
	"time"

	"github.com/beejcap/lsp-auth/pkg/errx"
	"github.com/beejcap/lsp-auth/pkg/iam/enroll"
	"github.com/beejcap/lsp-auth/pkg/iam/enroll/enrollsrv"
	"github.com/beejcap/lsp-auth/pkg/iam/otp"
	"github.com/beejcap/lsp-auth/pkg/iam/otp/otpsrv"
	"github.com/beejcap/lsp-auth/pkg/iam/roles"
	"github.com/beejcap/lsp-auth/pkg/idp"
	"github.com/beejcap/lsp-auth/pkg/kernel"
	"github.com/beejcap/lsp-auth/pkg/notifx"
	"github.com/beejcap/lsp-auth/pkg/store/storememory"
)

const (
	riderMobile = "+915550001111"
	testMobile  = "+919999991234"
	riderEid    = "enterprise-1"
)

// --- fakes ---

type fakeMembers struct {
	err         error
	gotEid      kernel.EnterpriseID
	gotUsername kernel.Username
}

func (f *fakeMembers) CheckConfirmedMember(_ context.Context, eid kernel.EnterpriseID, username kernel.Username) error {
	f.gotEid = eid
	f.gotUsername = username
	return f.err
}

type fakeSMS struct {
	sent []notifx.SMSMessage
	err  error
}

func (f *fakeSMS) SendSMS(_ context.Context, msg notifx.SMSMessage) (*notifx.SendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	return &notifx.SendResult{MessageID: "m1", Accepted: true}, nil
}

type fakeIssuer struct {
	issued []kernel.AuthContext
}

func (f *fakeIssuer) IssueToken(_ context.Context, identity kernel.AuthContext) (string, error) {
	f.issued = append(f.issued, identity)
	return "local-session-token", nil
}

type fixture struct {
	svc     *otpsrv.Service
	store   *storememory.MemoryStore
	members *fakeMembers
	sms     *fakeSMS
	issuer  *fakeIssuer
	clock   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storememory.NewMemoryStore()
	members := &fakeMembers{}
	sms := &fakeSMS{}
	issuer := &fakeIssuer{}

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	f := &fixture{store: st, members: members, sms: sms, issuer: issuer, clock: &now}
	f.svc = otpsrv.NewService(st, members, sms, issuer, 5*time.Minute, "+9199999").
		WithClock(func() time.Time { return *f.clock })
	return f
}

// seedRider writes the rider's authentication profile the way the enrollment
// flow does, keyed by the synthesized username.
func (f *fixture) seedRider(t *testing.T, mobile string, confirmed bool) {
	t.Helper()
	profile := enroll.AuthProfile{
		Eid:              riderEid,
		Username:         kernel.MobileNumber(mobile).RiderUsername(),
		EnterpriseType:   enroll.TypeLsp,
		Role:             "lsp_rider",
		CreateDatetime:   *f.clock,
		ConfirmedByAdmin: confirmed,
	}
	err := f.store.ConditionalUpdate(context.Background(), enroll.ProfileKey(profile.Username), enroll.ProfileAttributes(profile), nil)
	if err != nil {
		t.Fatalf("seeding rider: %v", err)
	}
}

func (f *fixture) storedCode(t *testing.T, mobile string) string {
	t.Helper()
	rec, err := f.store.Get(context.Background(), enroll.MobileKey(kernel.MobileNumber(mobile)))
	if err != nil || rec == nil {
		t.Fatalf("mobile record missing")
	}
	return rec.Attr["otp"]
}

// --- RequestOtp ---

func TestRequestOtpStoresCodeAndSendsSMS(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.RequestOtp(context.Background(), riderMobile, riderEid); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// The mobile record did not exist; the request creates it.
	code := f.storedCode(t, riderMobile)
	if len(code) != otp.CodeLength {
		t.Fatalf("expected %d-digit code, got %q", otp.CodeLength, code)
	}
	if len(f.sms.sent) != 1 || f.sms.sent[0].PhoneNumber != riderMobile {
		t.Fatalf("sms not sent to rider: %+v", f.sms.sent)
	}
}

func TestRequestOtpGatesOnMemberIndex(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.RequestOtp(context.Background(), riderMobile, riderEid); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if f.members.gotEid != riderEid {
		t.Fatalf("membership checked against wrong enterprise: %s", f.members.gotEid)
	}
	if f.members.gotUsername != kernel.MobileNumber(riderMobile).RiderUsername() {
		t.Fatalf("membership checked for wrong username: %s", f.members.gotUsername)
	}
}

func TestRequestOtpRejectsBadFormat(t *testing.T) {
	f := newFixture(t)

	for _, raw := range []string{"", "5550001111", "+0123", "+91abc", "+12345678901234567"} {
		if err := f.svc.RequestOtp(context.Background(), raw, riderEid); err == nil {
			t.Fatalf("expected format error for %q", raw)
		}
	}
}

func TestRequestOtpRequiresEid(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.RequestOtp(context.Background(), riderMobile, ""); err == nil {
		t.Fatal("expected error for missing eid")
	}
	if len(f.sms.sent) != 0 {
		t.Fatal("sms must not be sent without an eid")
	}
}

func TestRequestOtpDeniedMember(t *testing.T) {
	f := newFixture(t)
	f.members.err = otp.ErrMemberNotEligible()

	if err := f.svc.RequestOtp(context.Background(), riderMobile, riderEid); err == nil {
		t.Fatal("expected membership denial to propagate")
	}
	if len(f.sms.sent) != 0 {
		t.Fatal("sms must not be sent for denied members")
	}
}

func TestRequestOtpSMSFailure(t *testing.T) {
	f := newFixture(t)
	f.sms.err = notifx.ErrSendFailed()

	if err := f.svc.RequestOtp(context.Background(), riderMobile, riderEid); err == nil {
		t.Fatal("expected delivery failure to surface")
	}
}

func TestRequestOtpTestRangeSkipsSMS(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.RequestOtp(context.Background(), testMobile, riderEid); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if code := f.storedCode(t, testMobile); code != otp.TestCode {
		t.Fatalf("expected fixed test code, got %q", code)
	}
	if len(f.sms.sent) != 0 {
		t.Fatal("test-range numbers must not receive sms")
	}
}

// --- VerifyOtp ---

func TestVerifyOtpRoundTripIsSingleUse(t *testing.T) {
	f := newFixture(t)
	f.seedRider(t, riderMobile, true)
	ctx := context.Background()

	if err := f.svc.RequestOtp(ctx, riderMobile, riderEid); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	code := f.storedCode(t, riderMobile)

	result, err := f.svc.VerifyOtp(ctx, riderMobile, code)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if result.JWT != "local-session-token" {
		t.Fatalf("expected issued token, got %q", result.JWT)
	}
	if result.Eid != riderEid || result.Role != "lsp_rider" {
		t.Fatalf("wrong identity in result: %+v", result)
	}
	if result.DisplayName != "Lsp-"+riderMobile {
		t.Fatalf("wrong display name: %s", result.DisplayName)
	}
	if result.Username != kernel.MobileNumber(riderMobile).RiderUsername() {
		t.Fatalf("wrong username: %s", result.Username)
	}

	if len(f.issuer.issued) != 1 || f.issuer.issued[0].Origin != kernel.OriginLocal {
		t.Fatalf("issuer saw wrong identity: %+v", f.issuer.issued)
	}

	// Second submission of the same code must fail.
	if _, err := f.svc.VerifyOtp(ctx, riderMobile, code); err == nil {
		t.Fatal("code must be single-use")
	}
}

func TestVerifyOtpExpiryCheckedBeforeEquality(t *testing.T) {
	f := newFixture(t)
	f.seedRider(t, riderMobile, true)
	ctx := context.Background()

	if err := f.svc.RequestOtp(ctx, riderMobile, riderEid); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	code := f.storedCode(t, riderMobile)

	*f.clock = f.clock.Add(5*time.Minute + time.Second)

	_, err := f.svc.VerifyOtp(ctx, riderMobile, code)
	if err == nil {
		t.Fatal("expected expiry error")
	}
	if err.Error() != otp.ErrOtpExpired().Error() {
		t.Fatalf("correct-but-expired code must report expired, got %v", err)
	}

	// The expired code is consumed as well.
	if f.storedCode(t, riderMobile) != "" {
		t.Fatal("expired code not cleared")
	}
}

func TestVerifyOtpMismatch(t *testing.T) {
	f := newFixture(t)
	f.seedRider(t, riderMobile, true)
	ctx := context.Background()

	if err := f.svc.RequestOtp(ctx, riderMobile, riderEid); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if _, err := f.svc.VerifyOtp(ctx, riderMobile, "000000"); err == nil {
		t.Fatal("expected mismatch error")
	}
	if len(f.issuer.issued) != 0 {
		t.Fatal("no token may be issued on mismatch")
	}
}

func TestVerifyOtpNonDigitCodeIsFormatError(t *testing.T) {
	f := newFixture(t)
	f.seedRider(t, riderMobile, true)
	ctx := context.Background()

	if err := f.svc.RequestOtp(ctx, riderMobile, riderEid); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	for _, code := range []string{"abcdef", "12345", "1234567", "12345x"} {
		_, err := f.svc.VerifyOtp(ctx, riderMobile, code)
		if err == nil {
			t.Fatalf("expected format error for %q", code)
		}
		var e *errx.Error
		if !errx.As(err, &e) || e.Code != otp.CodeInvalidFormat.Code {
			t.Fatalf("expected %s for %q, got %v", otp.CodeInvalidFormat.Code, code, err)
		}
	}
}

func TestVerifyOtpWithoutRequest(t *testing.T) {
	f := newFixture(t)
	f.seedRider(t, riderMobile, true)

	if _, err := f.svc.VerifyOtp(context.Background(), riderMobile, "123456"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestVerifyOtpUnknownRider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A code exists but no profile was ever enrolled for the username.
	if err := f.svc.RequestOtp(ctx, riderMobile, riderEid); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	code := f.storedCode(t, riderMobile)

	if _, err := f.svc.VerifyOtp(ctx, riderMobile, code); err == nil {
		t.Fatal("expected user-not-found error")
	}
	if len(f.issuer.issued) != 0 {
		t.Fatal("no token may be issued without a profile")
	}
}

func TestVerifyOtpUnapprovedRider(t *testing.T) {
	f := newFixture(t)
	f.seedRider(t, riderMobile, false)
	ctx := context.Background()

	if err := f.svc.RequestOtp(ctx, riderMobile, riderEid); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	code := f.storedCode(t, riderMobile)

	if _, err := f.svc.VerifyOtp(ctx, riderMobile, code); err == nil {
		t.Fatal("unapproved rider must not get a session")
	}
}

// --- end to end against the real enrollment orchestrator ---

type autoProvider struct{}

func (autoProvider) Register(context.Context, idp.RegisterInput) error { return nil }
func (autoProvider) ConfirmRegistration(context.Context, string, kernel.Username, string) error {
	return nil
}
func (autoProvider) ResendCode(context.Context, string, kernel.Username) error { return nil }
func (autoProvider) PasswordAuth(context.Context, string, kernel.Username, string) (*idp.AuthResult, error) {
	return &idp.AuthResult{IDToken: "provider-id-token"}, nil
}
func (autoProvider) ForgotPassword(context.Context, string, kernel.Username) error { return nil }
func (autoProvider) ConfirmForgotPassword(context.Context, string, kernel.Username, string, string) error {
	return nil
}
func (autoProvider) AdminGetUser(context.Context, kernel.Username) (*idp.User, error) {
	return nil, idp.ErrUserNotFound()
}
func (autoProvider) AdminUpdateAttributes(context.Context, kernel.Username, map[string]string) error {
	return nil
}
func (autoProvider) AdminDeleteUser(context.Context, kernel.Username) error { return nil }

// A rider enrolled and approved through the enrollment flow alone must be
// able to complete the whole OTP login, with no hand-written records.
func TestOtpFlowReachableThroughEnrollment(t *testing.T) {
	ctx := context.Background()
	st := storememory.NewMemoryStore()

	claims, err := roles.NewClaimsTable(map[string][]string{
		"lsp_admin": {"lsp:manageUser"},
		"lsp_rider": {},
	})
	if err != nil {
		t.Fatalf("building claims table: %v", err)
	}
	enrollment := enrollsrv.NewService(st, autoProvider{}, claims)

	founder, err := enrollment.Enroll(ctx, enrollsrv.SignupRequest{
		Email:          "fleet@lsp.com",
		Password:       "s3cret!",
		EnterpriseType: "lsp",
		BusinessName:   "Fleet Co",
		ClientID:       "client-1",
	})
	if err != nil {
		t.Fatalf("founder enroll failed: %v", err)
	}

	mobile := kernel.MobileNumber(riderMobile)
	rider, err := enrollment.Enroll(ctx, enrollsrv.SignupRequest{
		Email:          "rider@lsp.com",
		Password:       "s3cret!",
		Username:       mobile.RiderUsername().String(),
		EnterpriseType: "lsp",
		ClientID:       "client-1",
		Eid:            founder.Eid.String(),
		Role:           "lsp_rider",
		CallerEid:      founder.Eid,
	})
	if err != nil {
		t.Fatalf("rider enroll failed: %v", err)
	}
	if err := enrollment.ConfirmInternalUser(ctx, founder.Eid, rider.Username); err != nil {
		t.Fatalf("rider consent failed: %v", err)
	}

	sms := &fakeSMS{}
	issuer := &fakeIssuer{}
	svc := otpsrv.NewService(st, enrollment, sms, issuer, 5*time.Minute, "+9199999")

	if err := svc.RequestOtp(ctx, riderMobile, founder.Eid); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if len(sms.sent) != 1 {
		t.Fatalf("expected one sms, got %d", len(sms.sent))
	}

	rec, err := st.Get(ctx, enroll.MobileKey(mobile))
	if err != nil || rec == nil {
		t.Fatal("mobile record missing after request")
	}

	result, err := svc.VerifyOtp(ctx, riderMobile, rec.Attr["otp"])
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if result.Eid != founder.Eid || result.Role != "lsp_rider" {
		t.Fatalf("wrong identity in result: %+v", result)
	}
}
