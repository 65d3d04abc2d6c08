package repositories

import (
	"context"
	"testing"
	"time"

	"goodnoodle/internal/models"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var userColumns = []string{"id", "tenant_id", "slack_user_id", "display_name", "tokens_received", "tokens_sent", "created_at"}

type UserRepoTestSuite struct {
	suite.Suite
	mock pgxmock.PgxPoolIface
	repo UserRepository
	ctx  context.Context
}

func (suite *UserRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	require.NoError(suite.T(), err)
	suite.mock = mock
	suite.repo = NewUserRepo(mock)
	suite.ctx = context.Background()
}

func (suite *UserRepoTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
	suite.mock.Close()
}

func TestUserRepoTestSuite(t *testing.T) {
	suite.Run(t, new(UserRepoTestSuite))
}

func (suite *UserRepoTestSuite) TestInsert_New() {
	name := "Alice"
	user := &models.User{ID: uuid.New(), TenantID: "T:T1", SlackUserID: "UALICE00001", DisplayName: &name, CreatedAt: time.Now()}

	suite.mock.ExpectExec(`INSERT INTO users .* ON CONFLICT \(tenant_id, slack_user_id\) DO NOTHING`).
		WithArgs(user.ID, user.TenantID, user.SlackUserID, user.DisplayName, user.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := suite.repo.Insert(suite.ctx, user)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), inserted)
}

func (suite *UserRepoTestSuite) TestInsert_Conflict() {
	user := &models.User{ID: uuid.New(), TenantID: "T:T1", SlackUserID: "UALICE00001", CreatedAt: time.Now()}

	suite.mock.ExpectExec(`INSERT INTO users`).
		WithArgs(user.ID, user.TenantID, user.SlackUserID, user.DisplayName, user.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := suite.repo.Insert(suite.ctx, user)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), inserted)
}

func (suite *UserRepoTestSuite) TestGetBySlackID_Success() {
	id := uuid.New()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	name := "Bob"

	suite.mock.ExpectQuery(`SELECT id, tenant_id, slack_user_id`).
		WithArgs("T:T1", "UBOB0000001").
		WillReturnRows(pgxmock.NewRows(userColumns).AddRow(id, "T:T1", "UBOB0000001", &name, 4, 2, created))

	user, err := suite.repo.GetBySlackID(suite.ctx, "T:T1", "UBOB0000001")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), id, user.ID)
	assert.Equal(suite.T(), "Bob", *user.DisplayName)
	assert.Equal(suite.T(), 4, user.TokensReceived)
	assert.Equal(suite.T(), 2, user.TokensSent)
}

func (suite *UserRepoTestSuite) TestGetBySlackID_NotFound() {
	suite.mock.ExpectQuery(`SELECT id, tenant_id, slack_user_id`).
		WithArgs("T:T1", "UNOBODY0001").
		WillReturnError(pgx.ErrNoRows)

	user, err := suite.repo.GetBySlackID(suite.ctx, "T:T1", "UNOBODY0001")
	assert.Nil(suite.T(), user)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *UserRepoTestSuite) TestListByTenant() {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(userColumns).
		AddRow(uuid.New(), "T:T1", "UA000000001", nil, 1, 0, created).
		AddRow(uuid.New(), "T:T1", "UB000000001", nil, 0, 1, created.Add(time.Minute))

	suite.mock.ExpectQuery(`FROM users\s+WHERE tenant_id = \$1\s+ORDER BY created_at, id`).
		WithArgs("T:T1").
		WillReturnRows(rows)

	users, err := suite.repo.ListByTenant(suite.ctx, "T:T1")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), users, 2)
	assert.Nil(suite.T(), users[0].DisplayName)
	assert.Equal(suite.T(), "UB000000001", users[1].SlackUserID)
}

func (suite *UserRepoTestSuite) TestListTenantIDs() {
	suite.mock.ExpectQuery(`SELECT DISTINCT tenant_id FROM users`).
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id"}).AddRow("E:E1").AddRow("T:T1"))

	ids, err := suite.repo.ListTenantIDs(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"E:E1", "T:T1"}, ids)
}

func (suite *UserRepoTestSuite) TestRecomputeTotals_Subset() {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	suite.mock.ExpectExec(`UPDATE users u\s+SET tokens_received = .* AND u.id = ANY\(\$2\)`).
		WithArgs("T:T1", ids).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := suite.repo.RecomputeTotals(suite.ctx, "T:T1", ids)
	assert.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 2, n)
}

func (suite *UserRepoTestSuite) TestRecomputeTotals_WholeTenant() {
	suite.mock.ExpectExec(`UPDATE users u\s+SET tokens_received`).
		WithArgs("T:T1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 7))

	n, err := suite.repo.RecomputeTotals(suite.ctx, "T:T1", nil)
	assert.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 7, n)
}
