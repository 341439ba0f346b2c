package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/nodepool/pkg/apperrors"
)

func TestRegistry_OpenUsesRegisteredFactory(t *testing.T) {
	fake := newFakeConnector(2).withRow(false)
	Register(AdapterRegistration{
		Info: AdapterInfo{
			Kind:        "fake-registry-test",
			DisplayName: "Fake",
			Description: "in-memory pool for tests",
		},
		Factory: fakeFactory(fake),
	})

	assert.True(t, IsRegistered("fake-registry-test"))
	assert.NotNil(t, GetFactory("fake-registry-test"))

	var found bool
	for _, info := range RegisteredAdapters() {
		if info.Kind == "fake-registry-test" {
			found = true
			assert.Equal(t, "Fake", info.DisplayName)
		}
	}
	assert.True(t, found)

	ds, err := Open(context.Background(), "fake-registry-test", testOptions(2), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer ds.Close()

	role, err := ds.Role(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RolePrimary, role)
}

func TestRegistry_UnknownKind(t *testing.T) {
	assert.False(t, IsRegistered("does-not-exist"))
	assert.Nil(t, GetFactory("does-not-exist"))

	_, err := Open(context.Background(), "does-not-exist", testOptions(1), nil)
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}
