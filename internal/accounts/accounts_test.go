package accounts

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/court-scheduler/internal/crypto"
	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/logging"
	"github.com/example/court-scheduler/internal/migrate"
)

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "***", Mask("abc"))
	assert.Equal(t, "******7890", Mask("1234567890"))
}

func TestRepoRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	d, err := db.Open(ctx, url)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, migrate.Up(ctx, d, logging.Discard()))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	aead, err := crypto.FromBase64(key)
	require.NoError(t, err)
	repo := NewRepo(d, aead)

	name := "test-" + uuid.NewString()
	defer func() { _ = d.Exec(ctx, `DELETE FROM accounts WHERE name=$1`, name) }()

	require.NoError(t, repo.Save(ctx, Account{Name: name, Token: "t1", OpenID: "o1"}))
	require.NoError(t, repo.Save(ctx, Account{Name: name, Token: "t2", OpenID: "o2", SendKey: "SCTkey"}))

	got, err := repo.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "t2", got.Token)
	assert.Equal(t, "o2", got.OpenID)
	assert.Equal(t, "SCTkey", got.SendKey)

	names, err := repo.Names(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, name)

	_, err = repo.Get(ctx, name+"-missing")
	assert.ErrorIs(t, err, internaltypes.ErrNotFound)
}
