package secret

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynetl/internal/apperrors"
)

func TestEnvName(t *testing.T) {
	assert.Equal(t, "ETL_SECRET_WAREHOUSE_PG", EnvName("warehouse-pg"))
	assert.Equal(t, "ETL_SECRET_A_B_1", EnvName("a.b 1"))
}

func TestResolve(t *testing.T) {
	t.Setenv("ETL_SECRET_WAREHOUSE_PG", "hunter2")
	ctx := context.Background()

	cfg := map[string]any{
		"driver":   "postgres",
		"password": "secret:warehouse-pg",
		"port":     5432,
	}
	out, err := Resolve(ctx, EnvStore{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", out["password"])
	assert.Equal(t, 5432, out["port"])
	assert.Equal(t, "secret:warehouse-pg", cfg["password"], "input must not be modified")

	_, err = Resolve(ctx, EnvStore{}, map[string]any{"password": "secret:missing"})
	require.Error(t, err)
	assert.True(t, apperrors.IsClientError(err))
}

func TestNew(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.IsType(t, EnvStore{}, s)

	_, err = New("vault")
	assert.Error(t, err)
}

func TestKeychainStore_Get(t *testing.T) {
	var gotArgs []string
	k := &KeychainStore{Service: "dynetl", run: func(name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte("hunter2\n"), nil
	}}

	val, err := k.Get("warehouse-pg")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(val))
	assert.Equal(t, []string{"security", "find-generic-password", "-a", "warehouse-pg", "-s", "dynetl", "-w"}, gotArgs)

	k.run = func(string, ...string) ([]byte, error) { return nil, errors.New("boom") }
	_, err = k.Get("warehouse-pg")
	assert.ErrorContains(t, err, "keychain get dynetl/warehouse-pg")
}
