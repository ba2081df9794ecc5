package idpcognito

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	cognito "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/beejcap/lsp-auth/pkg/errx"
	"github.com/beejcap/lsp-auth/pkg/idp"
	"github.com/beejcap/lsp-auth/pkg/kernel"
)

// CognitoProvider implements idp.IdentityProvider against an AWS Cognito
// user pool.
type CognitoProvider struct {
	client     *cognito.Client
	userPoolID string
}

// NewCognitoProvider creates a provider bound to one user pool.
func NewCognitoProvider(client *cognito.Client, userPoolID string) *CognitoProvider {
	return &CognitoProvider{
		client:     client,
		userPoolID: userPoolID,
	}
}

// Register creates the credential with the service-maintained custom
// attributes attached.
func (p *CognitoProvider) Register(ctx context.Context, in idp.RegisterInput) error {
	attrs := make([]types.AttributeType, 0, len(in.Attributes)+1)
	attrs = append(attrs, types.AttributeType{
		Name:  aws.String("email"),
		Value: aws.String(in.Email),
	})
	for name, value := range in.Attributes {
		attrs = append(attrs, types.AttributeType{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	_, err := p.client.SignUp(ctx, &cognito.SignUpInput{
		ClientId:       aws.String(in.ClientID),
		Username:       aws.String(in.Username.String()),
		Password:       aws.String(in.Password),
		UserAttributes: attrs,
	})
	return mapError(err, "SignUp")
}

// ConfirmRegistration completes email verification with the user's code.
func (p *CognitoProvider) ConfirmRegistration(ctx context.Context, clientID string, username kernel.Username, code string) error {
	_, err := p.client.ConfirmSignUp(ctx, &cognito.ConfirmSignUpInput{
		ClientId:         aws.String(clientID),
		Username:         aws.String(username.String()),
		ConfirmationCode: aws.String(code),
	})
	return mapError(err, "ConfirmSignUp")
}

// ResendCode re-sends the registration confirmation code.
func (p *CognitoProvider) ResendCode(ctx context.Context, clientID string, username kernel.Username) error {
	_, err := p.client.ResendConfirmationCode(ctx, &cognito.ResendConfirmationCodeInput{
		ClientId: aws.String(clientID),
		Username: aws.String(username.String()),
	})
	return mapError(err, "ResendConfirmationCode")
}

// PasswordAuth performs USER_PASSWORD_AUTH and returns the token bundle.
func (p *CognitoProvider) PasswordAuth(ctx context.Context, clientID string, username kernel.Username, password string) (*idp.AuthResult, error) {
	out, err := p.client.InitiateAuth(ctx, &cognito.InitiateAuthInput{
		ClientId: aws.String(clientID),
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		AuthParameters: map[string]string{
			"USERNAME": username.String(),
			"PASSWORD": password,
		},
	})
	if err != nil {
		return nil, mapError(err, "InitiateAuth")
	}
	if out.AuthenticationResult == nil {
		return nil, idp.ErrUpstream().WithDetail("reason", "no authentication result returned")
	}

	return &idp.AuthResult{
		IDToken:      aws.ToString(out.AuthenticationResult.IdToken),
		AccessToken:  aws.ToString(out.AuthenticationResult.AccessToken),
		RefreshToken: aws.ToString(out.AuthenticationResult.RefreshToken),
		ExpiresIn:    out.AuthenticationResult.ExpiresIn,
	}, nil
}

// ForgotPassword starts the provider's password-reset flow.
func (p *CognitoProvider) ForgotPassword(ctx context.Context, clientID string, username kernel.Username) error {
	_, err := p.client.ForgotPassword(ctx, &cognito.ForgotPasswordInput{
		ClientId: aws.String(clientID),
		Username: aws.String(username.String()),
	})
	return mapError(err, "ForgotPassword")
}

// ConfirmForgotPassword completes the password reset with the emailed code.
func (p *CognitoProvider) ConfirmForgotPassword(ctx context.Context, clientID string, username kernel.Username, password, code string) error {
	_, err := p.client.ConfirmForgotPassword(ctx, &cognito.ConfirmForgotPasswordInput{
		ClientId:         aws.String(clientID),
		Username:         aws.String(username.String()),
		Password:         aws.String(password),
		ConfirmationCode: aws.String(code),
	})
	return mapError(err, "ConfirmForgotPassword")
}

// AdminGetUser fetches the provider-side user with its attributes.
func (p *CognitoProvider) AdminGetUser(ctx context.Context, username kernel.Username) (*idp.User, error) {
	out, err := p.client.AdminGetUser(ctx, &cognito.AdminGetUserInput{
		UserPoolId: aws.String(p.userPoolID),
		Username:   aws.String(username.String()),
	})
	if err != nil {
		return nil, mapError(err, "AdminGetUser")
	}

	attrs := make(map[string]string, len(out.UserAttributes))
	for _, a := range out.UserAttributes {
		attrs[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}

	return &idp.User{
		Username:   kernel.NewUsername(aws.ToString(out.Username)),
		Status:     string(out.UserStatus),
		Attributes: attrs,
	}, nil
}

// AdminUpdateAttributes overwrites the given custom attributes.
func (p *CognitoProvider) AdminUpdateAttributes(ctx context.Context, username kernel.Username, attrs map[string]string) error {
	updates := make([]types.AttributeType, 0, len(attrs))
	for name, value := range attrs {
		updates = append(updates, types.AttributeType{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	_, err := p.client.AdminUpdateUserAttributes(ctx, &cognito.AdminUpdateUserAttributesInput{
		UserPoolId:     aws.String(p.userPoolID),
		Username:       aws.String(username.String()),
		UserAttributes: updates,
	})
	return mapError(err, "AdminUpdateUserAttributes")
}

// AdminDeleteUser removes the credential from the user pool.
func (p *CognitoProvider) AdminDeleteUser(ctx context.Context, username kernel.Username) error {
	_, err := p.client.AdminDeleteUser(ctx, &cognito.AdminDeleteUserInput{
		UserPoolId: aws.String(p.userPoolID),
		Username:   aws.String(username.String()),
	})
	return mapError(err, "AdminDeleteUser")
}

// mapError translates Cognito API exceptions into the gateway's error codes,
// forwarding a usable status to the caller.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}

	var usernameExists *types.UsernameExistsException
	if errx.As(err, &usernameExists) {
		return idp.ErrUsernameExists().WithCause(err)
	}
	var userNotFound *types.UserNotFoundException
	if errx.As(err, &userNotFound) {
		return idp.ErrUserNotFound().WithCause(err)
	}
	var notAuthorized *types.NotAuthorizedException
	if errx.As(err, &notAuthorized) {
		return idp.ErrNotAuthorized().WithCause(err)
	}
	var codeMismatch *types.CodeMismatchException
	if errx.As(err, &codeMismatch) {
		return idp.ErrCodeMismatch().WithCause(err)
	}
	var expiredCode *types.ExpiredCodeException
	if errx.As(err, &expiredCode) {
		return idp.ErrCodeMismatch().WithCause(err).
			WithDetail("reason", "verification code expired")
	}
	var notConfirmed *types.UserNotConfirmedException
	if errx.As(err, &notConfirmed) {
		return idp.ErrNotAuthorized().WithCause(err).
			WithDetail("reason", "user is not confirmed")
	}

	return idp.ErrUpstream().WithCause(err).WithDetail("operation", op)
}
