package data_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-navaneeth8770/queuectl/internal/data"
	"github.com/m-navaneeth8770/queuectl/internal/testutil"
)

func TestConfigRepoGetSet(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := data.NewConfigRepo(db, nil)
		ctx := context.Background()

		v, err := repo.Get(ctx, data.ConfigKeyMaxRetries)
		require.NoError(t, err)
		assert.Equal(t, "3", v)

		require.NoError(t, repo.Set(ctx, data.ConfigKeyMaxRetries, "5"))
		v, err = repo.Get(ctx, data.ConfigKeyMaxRetries)
		require.NoError(t, err)
		assert.Equal(t, "5", v)

		_, err = repo.Get(ctx, "no_such_key")
		assert.ErrorIs(t, err, data.ErrConfigKeyNotFound)

		all, err := repo.All(ctx)
		require.NoError(t, err)
		assert.Equal(t, "5", all[data.ConfigKeyMaxRetries])
	})
}

func TestConfigRepoDefaults(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := data.NewConfigRepo(db, nil)
		ctx := context.Background()

		d, err := repo.Defaults(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, d.MaxRetries)
		assert.Equal(t, 2, d.BackoffBase)
		assert.Equal(t, 300, d.TimeoutSeconds)

		require.NoError(t, repo.Set(ctx, data.ConfigKeyBackoffBase, "4"))
		require.NoError(t, repo.Set(ctx, data.ConfigKeyDefaultTimeout, "garbage"))

		d, err = repo.Defaults(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, d.BackoffBase)
		assert.Equal(t, 300, d.TimeoutSeconds, "unparsable value falls back to built-in")
	})
}
