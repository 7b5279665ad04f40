package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gatehouse/internal/auth"
	"gatehouse/internal/auth/mocks"
	"gatehouse/internal/gateway"
	domainerrors "gatehouse/pkg/domain-errors"
)

func successLoginEnvelope(t *testing.T) *gateway.Envelope {
	t.Helper()
	return &gateway.Envelope{
		Success: true,
		Data: []byte(`{"token":"tok-1","user":{"id":"7","email":"pat@gatehouse.example","role":"staff"}}`),
	}
}

func TestSignInPersistFailureDoesNotAuthenticate(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	store := mocks.NewMockTokenStore(ctrl)

	gw.EXPECT().Do(gomock.Any(), gomock.Any()).Return(successLoginEnvelope(t), nil)
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	mgr, err := auth.New(gw, store)
	require.NoError(t, err)

	_, err = mgr.SignIn(context.Background(), "pat@gatehouse.example", "correct-horse")
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeInternal, domainerrors.CodeOf(err))
	assert.False(t, mgr.State().IsAuthenticated)
	assert.NotEmpty(t, mgr.State().Err)
}

func TestSignOutClearsStoreWhenBackendErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	store := mocks.NewMockTokenStore(ctrl)

	gw.EXPECT().Do(gomock.Any(), gomock.Any()).
		Return(&gateway.Envelope{Success: false, Message: "Network error occurred"},
			domainerrors.New(domainerrors.CodeNetwork, "Network error occurred"))
	store.EXPECT().Clear(gomock.Any()).Return(nil)

	mgr, err := auth.New(gw, store)
	require.NoError(t, err)

	require.NoError(t, mgr.SignOut(context.Background()))
	assert.False(t, mgr.State().IsAuthenticated)
}

func TestSignOutSurfacesClearFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	store := mocks.NewMockTokenStore(ctrl)

	gw.EXPECT().Do(gomock.Any(), gomock.Any()).Return(&gateway.Envelope{Success: true}, nil)
	store.EXPECT().Clear(gomock.Any()).Return(errors.New("readonly filesystem"))

	mgr, err := auth.New(gw, store)
	require.NoError(t, err)

	err = mgr.SignOut(context.Background())
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeInternal, domainerrors.CodeOf(err))
	// State is reset regardless.
	assert.False(t, mgr.State().IsAuthenticated)
}

func TestForceSignOutClearsStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	store := mocks.NewMockTokenStore(ctrl)

	store.EXPECT().Clear(gomock.Any()).Return(nil)

	mgr, err := auth.New(gw, store)
	require.NoError(t, err)

	mgr.ForceSignOut(context.Background())
	assert.False(t, mgr.State().IsAuthenticated)
	assert.Nil(t, mgr.State().User)
}

func TestInitializeUnreadableStoreSettlesSignedOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	store := mocks.NewMockTokenStore(ctrl)

	store.EXPECT().Load(gomock.Any()).Return(nil, errors.New("corrupt file"))

	mgr, err := auth.New(gw, store)
	require.NoError(t, err)

	require.NoError(t, mgr.Initialize(context.Background()))
	state := mgr.State()
	assert.False(t, state.IsAuthenticated)
	assert.False(t, state.IsLoading)
}

func TestChangePasswordUsesStoredToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	store := mocks.NewMockTokenStore(ctrl)

	gw.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req gateway.Request) (*gateway.Envelope, error) {
			assert.True(t, req.Authenticated)
			return &gateway.Envelope{Success: true, Message: "password changed"}, nil
		})

	mgr, err := auth.New(gw, store)
	require.NoError(t, err)

	msg, err := mgr.ChangePassword(context.Background(), "old-password", "new-password-1")
	require.NoError(t, err)
	assert.Equal(t, "password changed", msg)
}
