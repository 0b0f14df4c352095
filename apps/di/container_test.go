package di_test

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/apps/di"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/services/scheduler"
)

func TestNewWithConfig(t *testing.T) {
	dir := t.TempDir()
	c := di.NewWithConfig(func() *core.Config {
		conf := core.NewTestConfig()
		conf.Database.Path = filepath.Join(dir, "shule.db")
		return conf
	})

	err := c.Invoke(func(db *sqlx.DB, server *echoapi.Server, sch *scheduler.Scheduler) {
		defer func() { _ = db.Close() }()
		assert.NotNil(t, server)
		assert.Equal(t, 3, sch.Jobs())
	})
	require.NoError(t, err)
}
