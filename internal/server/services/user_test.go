package services

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/fieldsync/internal/common"
	"github.com/dmitrijs2005/fieldsync/internal/dbx"
	"github.com/dmitrijs2005/fieldsync/internal/server/auth"
	"github.com/dmitrijs2005/fieldsync/internal/server/config"
	"github.com/dmitrijs2005/fieldsync/internal/server/models"
	"github.com/dmitrijs2005/fieldsync/internal/server/repositories/records"
	refreshtokensrepo "github.com/dmitrijs2005/fieldsync/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/fieldsync/internal/server/repositories/repomanager"
	usersrepo "github.com/dmitrijs2005/fieldsync/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

var testSecret = []byte("k")

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func newUserService(t *testing.T, db *sql.DB, rm repomanager.RepositoryManager) *UserService {
	t.Helper()
	cfg := &config.Config{
		SecretKey:                    string(testSecret),
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
	}
	s := NewUserService(db, rm, cfg)
	s.bcryptCost = bcrypt.MinCost
	return s
}

type fakeUsersRepo struct {
	createOut *models.User
	createErr error

	getOut *models.User
	getErr error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createOut, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

type fakeRefreshRepo struct {
	findOut *models.RefreshToken
	findErr error

	delErr  error
	deleted []string

	createErr error
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID string, token string, validity time.Duration) error {
	return f.createErr
}

func (f *fakeRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findOut, nil
}

func (f *fakeRefreshRepo) Delete(ctx context.Context, token string) error {
	f.deleted = append(f.deleted, token)
	return f.delErr
}

// fakeRepoManager runs transactions on a sqlmock db so commit and rollback
// can be asserted.
type fakeRepoManager struct {
	db *sql.DB
	u  *fakeUsersRepo
	r  *fakeRefreshRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }
func (m *fakeRepoManager) Records(db dbx.DBTX) records.Repository                 { return nil }

func (m *fakeRepoManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, m.db, nil, fn)
}

func refreshFor(t *testing.T, userID string, validity time.Duration) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, "alice", testSecret, validity)
	require.NoError(t, err)
	return tok
}

func TestRefreshToken_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := &fakeRepoManager{
		db: db,
		r: &fakeRefreshRepo{
			findOut: &models.RefreshToken{UserID: "u1", Expires: time.Now().Add(10 * time.Minute)},
		},
	}
	s := newUserService(t, db, rm)

	old := refreshFor(t, "u1", time.Hour)
	pair, err := s.RefreshToken(context.Background(), old)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, old, pair.RefreshToken)
	assert.Equal(t, []string{old}, rm.r.deleted)

	claims, err := auth.ParseToken(pair.AccessToken, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.UserName)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshToken_ExpiredJWT(t *testing.T) {
	rm := &fakeRepoManager{r: &fakeRefreshRepo{}}
	s := newUserService(t, nil, rm)

	_, err := s.RefreshToken(context.Background(), refreshFor(t, "u1", -time.Minute))
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
}

func TestRefreshToken_Garbage(t *testing.T) {
	rm := &fakeRepoManager{r: &fakeRefreshRepo{}}
	s := newUserService(t, nil, rm)

	_, err := s.RefreshToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRefreshToken_StoredCopyExpired(t *testing.T) {
	rm := &fakeRepoManager{
		r: &fakeRefreshRepo{
			findOut: &models.RefreshToken{UserID: "u1", Expires: time.Now().Add(-1 * time.Minute)},
		},
	}
	s := newUserService(t, nil, rm)

	_, err := s.RefreshToken(context.Background(), refreshFor(t, "u1", time.Hour))
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
}

func TestRefreshToken_Revoked(t *testing.T) {
	rm := &fakeRepoManager{r: &fakeRefreshRepo{findErr: common.ErrorNotFound}}
	s := newUserService(t, nil, rm)

	_, err := s.RefreshToken(context.Background(), refreshFor(t, "u1", time.Hour))
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRefreshToken_FindErr(t *testing.T) {
	rm := &fakeRepoManager{r: &fakeRefreshRepo{findErr: errBoom{}}}
	s := newUserService(t, nil, rm)

	_, err := s.RefreshToken(context.Background(), refreshFor(t, "u1", time.Hour))
	if err == nil || !regexp.MustCompile(`error searching refresh token: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped find error, got %v", err)
	}
}

func TestRefreshToken_DeleteErr(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := &fakeRepoManager{
		db: db,
		r: &fakeRefreshRepo{
			findOut: &models.RefreshToken{UserID: "u1", Expires: time.Now().Add(10 * time.Minute)},
			delErr:  errBoom{},
		},
	}
	s := newUserService(t, db, rm)

	_, err := s.RefreshToken(context.Background(), refreshFor(t, "u1", time.Hour))
	if err == nil || !regexp.MustCompile(`error deleting refresh token: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped delete error, got %v", err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshToken_CreateErrRollsBack(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := &fakeRepoManager{
		db: db,
		r: &fakeRefreshRepo{
			findOut:   &models.RefreshToken{UserID: "u1", Expires: time.Now().Add(10 * time.Minute)},
			createErr: errBoom{},
		},
	}
	s := newUserService(t, db, rm)

	_, err := s.RefreshToken(context.Background(), refreshFor(t, "u1", time.Hour))
	assert.ErrorIs(t, err, common.ErrorInternal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister(t *testing.T) {
	rmOK := &fakeRepoManager{u: &fakeUsersRepo{createOut: &models.User{ID: "42", UserName: "alice"}}}
	u, err := newUserService(t, nil, rmOK).Register(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "42", u.ID)

	rmErr := &fakeRepoManager{u: &fakeUsersRepo{createErr: common.ErrorAlreadyExists}}
	_, err = newUserService(t, nil, rmErr).Register(context.Background(), "bob", "pw")
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
	assert.Regexp(t, `error creating user: `, err.Error())

	_, err = newUserService(t, nil, rmOK).Register(context.Background(), "  ", "pw")
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = newUserService(t, nil, rmOK).Register(context.Background(), "alice", "")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestLogin_Flows(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		users    *fakeUsersRepo
		refresh  *fakeRefreshRepo
		password string
		wantErr  error
	}{
		{name: "not found", users: &fakeUsersRepo{getErr: common.ErrorNotFound}, password: "x", wantErr: common.ErrorUnauthorized},
		{name: "internal", users: &fakeUsersRepo{getErr: errBoom{}}, password: "x", wantErr: common.ErrorInternal},
		{name: "wrong password", users: &fakeUsersRepo{getOut: &models.User{ID: "u1", PasswordHash: hash}}, password: "wrong", wantErr: common.ErrorUnauthorized},
		{name: "token store fails", users: &fakeUsersRepo{getOut: &models.User{ID: "u1", PasswordHash: hash}},
			refresh: &fakeRefreshRepo{createErr: errBoom{}}, password: "right", wantErr: common.ErrorInternal},
		{name: "ok", users: &fakeUsersRepo{getOut: &models.User{ID: "u1", UserName: "alice", PasswordHash: hash}}, password: "right"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.refresh
			if r == nil {
				r = &fakeRefreshRepo{}
			}
			s := newUserService(t, nil, &fakeRepoManager{u: tt.users, r: r})
			pair, err := s.Login(context.Background(), "alice", tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, pair.AccessToken)
			assert.NotEmpty(t, pair.RefreshToken)
		})
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	r := &fakeRefreshRepo{findOut: &models.RefreshToken{UserID: "u1"}}
	s := newUserService(t, nil, &fakeRepoManager{r: r})
	require.NoError(t, s.Logout(ctx, "u1", "tok"))
	assert.Equal(t, []string{"tok"}, r.deleted)

	other := &fakeRefreshRepo{findOut: &models.RefreshToken{UserID: "u2"}}
	s = newUserService(t, nil, &fakeRepoManager{r: other})
	assert.ErrorIs(t, s.Logout(ctx, "u1", "tok"), common.ErrorUnauthorized)
	assert.Empty(t, other.deleted)

	unknown := &fakeRefreshRepo{findErr: common.ErrorNotFound}
	s = newUserService(t, nil, &fakeRepoManager{r: unknown})
	assert.NoError(t, s.Logout(ctx, "u1", "tok"))

	failing := &fakeRefreshRepo{findOut: &models.RefreshToken{UserID: "u1"}, delErr: errBoom{}}
	s = newUserService(t, nil, &fakeRepoManager{r: failing})
	assert.Error(t, s.Logout(ctx, "u1", "tok"))
}

func TestUserService_MemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newUserService(t, nil, repomanager.NewMemoryRepositoryManager())

	_, err := s.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	_, err = s.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)

	_, err = s.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	pair, err := s.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	rotated, err := s.RefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// the old refresh token was revoked by the rotation
	_, err = s.RefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	claims, err := auth.ParseToken(rotated.AccessToken, testSecret)
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx, claims.UserID, rotated.RefreshToken))

	_, err = s.RefreshToken(ctx, rotated.RefreshToken)
	assert.True(t, errors.Is(err, common.ErrorUnauthorized))
}
