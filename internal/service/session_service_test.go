package service

import (
	"context"
	"errors"
	"testing"

	"fuelcard-client/internal/core/domain"
	"fuelcard-client/internal/core/ports/mocks"
	"fuelcard-client/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type sessionTestDeps struct {
	svc       *SessionService
	authority *mocks.MockAuthority
	tokens    *mocks.MockTokenStore
	ctrl      *gomock.Controller
}

func setupSessionService(t *testing.T) *sessionTestDeps {
	ctrl := gomock.NewController(t)
	d := &sessionTestDeps{
		authority: mocks.NewMockAuthority(ctrl),
		tokens:    mocks.NewMockTokenStore(ctrl),
		ctrl:      ctrl,
	}
	d.svc = NewSessionService(d.authority, d.tokens, zerolog.Nop())
	return d
}

// ==================== CheckAuth Tests ====================

func TestCheckAuth_NoToken_InvalidWithoutNetworkCall(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	// No CheckSession expectation: an absent token must never hit the network.
	d.tokens.EXPECT().Load(ctx).Return("", nil)

	require.NoError(t, d.svc.CheckAuth(ctx, false))
	assert.Equal(t, domain.ValidityInvalid, d.svc.Current().Validity)

	// Guard consequence: a protected screen redirects to sign-in.
	assert.Equal(t, domain.DecisionRedirectSignIn,
		domain.DecideRoute(d.svc.Current().Validity, domain.RouteProtected))
}

func TestCheckAuth_TokenAccepted_Valid(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	d.tokens.EXPECT().Load(ctx).Return("tok1", nil)
	d.authority.EXPECT().CheckSession(ctx, "tok1").Return(nil)

	require.NoError(t, d.svc.CheckAuth(ctx, false))
	assert.Equal(t, domain.Session{Token: "tok1", Validity: domain.ValidityValid}, d.svc.Current())
}

func TestCheckAuth_TokenRejected_ClearsTokenAndInvalidates(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	// First check: accepted.
	d.tokens.EXPECT().Load(ctx).Return("tok1", nil)
	d.authority.EXPECT().CheckSession(ctx, "tok1").Return(nil)
	require.NoError(t, d.svc.CheckAuth(ctx, false))
	require.Equal(t, domain.ValidityValid, d.svc.Current().Validity)

	// Second check: the authority now returns 401.
	d.tokens.EXPECT().Load(ctx).Return("tok1", nil)
	d.authority.EXPECT().CheckSession(ctx, "tok1").Return(apperror.ErrUnauthorized())
	d.tokens.EXPECT().Clear(ctx).Return(nil)

	require.NoError(t, d.svc.CheckAuth(ctx, false))
	assert.Equal(t, domain.ValidityInvalid, d.svc.Current().Validity)
	assert.Empty(t, d.svc.Current().Token)
}

func TestCheckAuth_TransportFailure_FailOpen(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	// Establish a valid session first.
	d.tokens.EXPECT().Save(ctx, "tok1").Return(nil)
	require.NoError(t, d.svc.SignIn(ctx, "tok1"))

	// A flaky link must not log the user out.
	d.tokens.EXPECT().Load(ctx).Return("tok1", nil)
	d.authority.EXPECT().CheckSession(ctx, "tok1").Return(apperror.Transport(errors.New("dial tcp: timeout")))

	err := d.svc.CheckAuth(ctx, false)
	require.Error(t, err)
	assert.Equal(t, apperror.KindTransport, apperror.KindOf(err))
	assert.Equal(t, domain.ValidityValid, d.svc.Current().Validity)
	assert.Equal(t, "tok1", d.svc.Current().Token)
}

func TestCheckAuth_Silent_NeverTogglesLoading(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	var sawLoading bool
	d.svc.SetOnChange(func() {
		if d.svc.Loading() {
			sawLoading = true
		}
	})

	d.tokens.EXPECT().Load(ctx).Return("tok1", nil)
	d.authority.EXPECT().CheckSession(ctx, "tok1").Return(nil)

	require.NoError(t, d.svc.CheckAuth(ctx, true))
	assert.False(t, sawLoading, "silent check must not toggle the loading indicator")
	assert.False(t, d.svc.Loading())
}

func TestCheckAuth_NonSilent_TogglesLoading(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	var sawLoading bool
	d.svc.SetOnChange(func() {
		if d.svc.Loading() {
			sawLoading = true
		}
	})

	d.tokens.EXPECT().Load(ctx).Return("", nil)

	require.NoError(t, d.svc.CheckAuth(ctx, false))
	assert.True(t, sawLoading)
	assert.False(t, d.svc.Loading(), "loading clears once the check completes")
}

func TestCheckAuth_SilentHasSameDecisionLogic(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	d.tokens.EXPECT().Load(ctx).Return("tok1", nil)
	d.authority.EXPECT().CheckSession(ctx, "tok1").Return(apperror.ErrUnauthorized())
	d.tokens.EXPECT().Clear(ctx).Return(nil)

	require.NoError(t, d.svc.CheckAuth(ctx, true))
	assert.Equal(t, domain.ValidityInvalid, d.svc.Current().Validity)
}

// ==================== SignIn / SignOut Tests ====================

func TestSignIn_PersistsTokenAndMarksValid(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	d.tokens.EXPECT().Save(ctx, "tok1").Return(nil)

	require.NoError(t, d.svc.SignIn(ctx, "tok1"))
	assert.Equal(t, domain.Session{Token: "tok1", Validity: domain.ValidityValid}, d.svc.Current())

	// Guard consequence: the sign-in screen redirects home.
	assert.Equal(t, domain.DecisionRedirectHome,
		domain.DecideRoute(d.svc.Current().Validity, domain.RoutePublic))
}

func TestSignOut_BestEffortClear(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	d.tokens.EXPECT().Save(ctx, "tok1").Return(nil)
	require.NoError(t, d.svc.SignIn(ctx, "tok1"))

	// A failing storage clear is swallowed; sign-out never fails.
	d.tokens.EXPECT().Clear(ctx).Return(errors.New("disk full"))
	d.svc.SignOut(ctx)

	assert.Equal(t, domain.ValidityUnverified, d.svc.Current().Validity)
	assert.Empty(t, d.svc.Current().Token)
}

func TestOnChange_FiresOnSessionTransitions(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	var changes int
	d.svc.SetOnChange(func() { changes++ })

	d.tokens.EXPECT().Save(ctx, "tok1").Return(nil)
	require.NoError(t, d.svc.SignIn(ctx, "tok1"))
	d.tokens.EXPECT().Clear(ctx).Return(nil)
	d.svc.SignOut(ctx)

	assert.Equal(t, 2, changes)
}

// ==================== Login / Register Tests ====================

func TestLogin_EmptyFields_NoNetworkCall(t *testing.T) {
	d := setupSessionService(t)

	err := d.svc.Login(context.Background(), "", "secret")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	err = d.svc.Login(context.Background(), "user@example.com", "")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestLogin_Success_SignsIn(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	d.authority.EXPECT().Login(ctx, "user@example.com", "hunter22").Return("tok1", nil)
	d.tokens.EXPECT().Save(ctx, "tok1").Return(nil)

	require.NoError(t, d.svc.Login(ctx, "user@example.com", "hunter22"))
	assert.True(t, d.svc.Current().Authenticated())
}

func TestLogin_BadCredentials_StateUntouched(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	d.authority.EXPECT().Login(ctx, "user@example.com", "wrong").Return("", apperror.ErrLoginFailed("Invalid credentials"))

	err := d.svc.Login(ctx, "user@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, domain.ValidityUnverified, d.svc.Current().Validity)
}

func TestRegister_Validation(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	err := d.svc.Register(ctx, "user@example.com", "secret11", "")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	err = d.svc.Register(ctx, "user@example.com", "secret11", "different")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Passwords do not match")
}

func TestRegister_Success(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	d.authority.EXPECT().Register(ctx, "user@example.com", "secret11", "secret11").Return(nil)
	require.NoError(t, d.svc.Register(ctx, "user@example.com", "secret11", "secret11"))
}

// ==================== ChangePassword / Profile Tests ====================

func TestChangePassword_SuccessSignsOut(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	d.tokens.EXPECT().Save(ctx, "tok1").Return(nil)
	require.NoError(t, d.svc.SignIn(ctx, "tok1"))

	d.tokens.EXPECT().Load(ctx).Return("tok1", nil)
	d.authority.EXPECT().ChangePassword(ctx, "tok1", "old", "newpass1", "newpass1").Return(nil)
	d.tokens.EXPECT().Clear(ctx).Return(nil)

	require.NoError(t, d.svc.ChangePassword(ctx, "old", "newpass1", "newpass1"))
	assert.Equal(t, domain.ValidityUnverified, d.svc.Current().Validity)
}

func TestChangePassword_MismatchRejectedLocally(t *testing.T) {
	d := setupSessionService(t)

	err := d.svc.ChangePassword(context.Background(), "old", "newpass1", "other")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestProfile_RequiresSession(t *testing.T) {
	d := setupSessionService(t)
	ctx := context.Background()

	d.tokens.EXPECT().Load(ctx).Return("", nil)

	_, err := d.svc.Profile(ctx)
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
}
