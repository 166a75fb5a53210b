package credentials

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/gridfeed/pkg/errors"
	"github.com/ajitpratap0/gridfeed/pkg/testutil"
)

// PostgresStoreSuite runs the SQL store against a real PostgreSQL server
// named by GRIDFEED_TEST_POSTGRES_DSN.
type PostgresStoreSuite struct {
	testutil.IntegrationTestSuite
	dsn   string
	store *SQLStore
	realm string
}

func TestPostgresStore(t *testing.T) {
	dsn := testutil.IntegrationTest(t, "GRIDFEED_TEST_POSTGRES_DSN")
	suite.Run(t, &PostgresStoreSuite{dsn: dsn})
}

func (s *PostgresStoreSuite) SetupTest() {
	c, err := NewCipher([]byte("integration key"), "it")
	s.Require().NoError(err)
	s.store, err = OpenSQLStore(s.Context(), DialectPostgres, s.dsn, c, zaptest.NewLogger(s.T()))
	s.Require().NoError(err)
	s.realm = fmt.Sprintf("it-%d", time.Now().UnixNano())
}

func (s *PostgresStoreSuite) TearDownTest() {
	_ = s.store.Delete(s.Context(), PasswordKey, s.realm)
	s.Require().NoError(s.store.Close())
}

func (s *PostgresStoreSuite) TestLifecycle() {
	ctx := s.Context()
	s.Require().NoError(s.store.Create(ctx, "s3cret", PasswordKey, s.realm))

	err := s.store.Create(ctx, "again", PasswordKey, s.realm)
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeConflict))

	found, err := s.store.Find(ctx, PasswordKey, s.realm)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal("s3cret", found[0].Secret)
}

func (s *PostgresStoreSuite) TestManagerRoundTrip() {
	ctx := s.Context()
	m := NewManager(s.store, nil, zaptest.NewLogger(s.T()))

	got, err := m.Resolve(ctx, "infoblox_gridmanager", s.realm, "literal")
	s.Require().NoError(err)
	s.Equal("literal", got)

	got, err = m.Resolve(ctx, "infoblox_gridmanager", s.realm, MaskSentinel)
	s.Require().NoError(err)
	s.Equal("literal", got)
}
