package otpsrv

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/beejcap/lsp-auth/pkg/iam/enroll"
	"github.com/beejcap/lsp-auth/pkg/iam/otp"
	"github.com/beejcap/lsp-auth/pkg/kernel"
	"github.com/beejcap/lsp-auth/pkg/logx"
	"github.com/beejcap/lsp-auth/pkg/notifx"
	"github.com/beejcap/lsp-auth/pkg/store"
)

// Stored attribute names on the mobile record.
const (
	attrOtp       = "otp"
	attrOtpExpiry = "otp_expiry"
)

// Service is the OTP lifecycle manager for the passwordless rider class.
// Riders are enrolled through the regular signup flow under the synthesized
// username <mobile>@lsp-rider.local; the service owns only the otp fields on
// the mobile record.
type Service struct {
	store      store.Store
	members    otp.MembershipChecker
	sms        notifx.SMSSender
	issuer     otp.TokenIssuer
	ttl        time.Duration
	testPrefix string
	now        func() time.Time
}

// NewService wires the OTP lifecycle manager. testPrefix marks the mobile
// number range that gets a fixed code and no real SMS.
func NewService(st store.Store, members otp.MembershipChecker, sms notifx.SMSSender, issuer otp.TokenIssuer, ttl time.Duration, testPrefix string) *Service {
	return &Service{
		store:      st,
		members:    members,
		sms:        sms,
		issuer:     issuer,
		ttl:        ttl,
		testPrefix: testPrefix,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Test helper.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RequestOtp generates and delivers a one-time code for the mobile number.
// The rider must already be an admin-confirmed member of the enterprise. The
// mobile record is created or overwritten on every request; an earlier code
// is silently superseded.
func (s *Service) RequestOtp(ctx context.Context, rawMobile string, eid kernel.EnterpriseID) error {
	mobile, err := otp.ParseMobile(rawMobile)
	if err != nil {
		return err
	}
	if eid.IsEmpty() {
		return otp.ErrInvalidFormat().WithDetail("field", "eid")
	}

	if err := s.members.CheckConfirmedMember(ctx, eid, mobile.RiderUsername()); err != nil {
		return err
	}

	isTest := s.testPrefix != "" && strings.HasPrefix(mobile.String(), s.testPrefix)
	code := otp.TestCode
	if !isTest {
		code, err = otp.GenerateCode()
		if err != nil {
			return err
		}
	}

	expiry := s.now().Add(s.ttl)
	err = s.store.ConditionalUpdate(ctx, enroll.MobileKey(mobile), store.Attributes{
		attrOtp:       code,
		attrOtpExpiry: strconv.FormatInt(expiry.UnixMilli(), 10),
	}, nil)
	if err != nil {
		return err
	}

	if isTest {
		logx.WithField("mobile", mobile.String()).Info("test-range mobile, sms suppressed")
		return nil
	}

	result, err := s.sms.SendSMS(ctx, notifx.SMSMessage{
		PhoneNumber: mobile.String(),
		Body:        "Your login OTP is " + code + ". It expires in " + formatMinutes(s.ttl) + ".",
	})
	if err != nil || !result.Accepted {
		logx.WithField("mobile", mobile.String()).WithError(err).Error("otp sms delivery failed")
		return otp.ErrDeliveryFailed().WithCause(err)
	}

	logx.WithFields(logx.Fields{
		"mobile":     mobile.String(),
		"message_id": result.MessageID,
	}).Info("otp sent")
	return nil
}

// VerifyResult is the OTP-path token envelope returned to clients.
type VerifyResult struct {
	JWT            string              `json:"jwt"`
	Eid            kernel.EnterpriseID `json:"eid"`
	Username       kernel.Username     `json:"username"`
	EnterpriseType string              `json:"enterprise_type"`
	DisplayName    string              `json:"display_name"`
	Role           string              `json:"role"`
}

// VerifyOtp checks the submitted code against the stored one and, on
// success, consumes it and issues a local session token. Expiry is checked
// before equality so an expired-but-correct code reports as expired, and the
// stored code is cleared in both cases to keep it single-use.
func (s *Service) VerifyOtp(ctx context.Context, rawMobile, code string) (*VerifyResult, error) {
	mobile, err := otp.ParseMobile(rawMobile)
	if err != nil {
		return nil, err
	}
	if err := otp.ParseCode(code); err != nil {
		return nil, err
	}

	key := enroll.MobileKey(mobile)
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Attr[attrOtp] == "" {
		return nil, otp.ErrOtpNotFound()
	}
	stored := rec.Attr[attrOtp]

	expiryMillis, err := strconv.ParseInt(rec.Attr[attrOtpExpiry], 10, 64)
	if err != nil || s.now().After(time.UnixMilli(expiryMillis)) {
		if clearErr := s.clearCode(ctx, key); clearErr != nil {
			logx.WithField("mobile", mobile.String()).WithError(clearErr).Warn("failed to clear expired otp")
		}
		return nil, otp.ErrOtpExpired()
	}

	if stored != code {
		return nil, otp.ErrOtpMismatch()
	}

	username := mobile.RiderUsername()
	profileRec, err := s.store.Get(ctx, enroll.ProfileKey(username))
	if err != nil {
		return nil, err
	}
	profile, err := enroll.ParseProfile(profileRec)
	if err != nil {
		return nil, err
	}
	if !profile.ConfirmedByAdmin {
		return nil, otp.ErrMemberNotEligible()
	}

	if err := s.clearCode(ctx, key); err != nil {
		return nil, err
	}
	identity := kernel.AuthContext{
		Username:         username,
		EnterpriseID:     profile.Eid,
		EnterpriseType:   profile.EnterpriseType.String(),
		Role:             profile.Role,
		ConfirmedByAdmin: true,
		AuthMethod:       "otp",
		Origin:           kernel.OriginLocal,
	}
	token, err := s.issuer.IssueToken(ctx, identity)
	if err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"mobile": mobile.String(),
		"eid":    profile.Eid.String(),
	}).Info("otp verified, session issued")

	return &VerifyResult{
		JWT:            token,
		Eid:            profile.Eid,
		Username:       username,
		EnterpriseType: profile.EnterpriseType.String(),
		DisplayName:    "Lsp-" + mobile.String(),
		Role:           profile.Role,
	}, nil
}

// clearCode removes the code fields without touching the rest of the record.
func (s *Service) clearCode(ctx context.Context, key store.Key) error {
	return s.store.ConditionalUpdate(ctx, key, nil, []string{attrOtp, attrOtpExpiry}, store.WithRequireExists())
}

func formatMinutes(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes <= 1 {
		return "1 minute"
	}
	return strconv.Itoa(minutes) + " minutes"
}
