package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/common"
	"github.com/dmitrijs2005/fieldsync/internal/server/auth"
	"github.com/dmitrijs2005/fieldsync/internal/server/models"
	"github.com/dmitrijs2005/fieldsync/internal/server/services"
	"github.com/dmitrijs2005/fieldsync/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ---- fakes ----

type fakeUsers struct {
	regErr error

	loginResp *services.TokenPair
	loginErr  error

	refreshResp *services.TokenPair
	refreshErr  error

	logoutUser string
	logoutErr  error
}

func (f *fakeUsers) Register(ctx context.Context, userName, password string) (*models.User, error) {
	if f.regErr != nil {
		return nil, f.regErr
	}
	return &models.User{ID: "u1", UserName: userName}, nil
}

func (f *fakeUsers) Login(ctx context.Context, userName, password string) (*services.TokenPair, error) {
	return f.loginResp, f.loginErr
}

func (f *fakeUsers) RefreshToken(ctx context.Context, refresh string) (*services.TokenPair, error) {
	return f.refreshResp, f.refreshErr
}

func (f *fakeUsers) Logout(ctx context.Context, userID, refresh string) error {
	f.logoutUser = userID
	return f.logoutErr
}

type fakeRecords struct {
	pushedBy string
	pushed   models.Record
	err      error

	pullQuery models.RecordQuery
	pullResp  *services.PullResult
}

func (f *fakeRecords) Push(ctx context.Context, owner string, rec models.Record) (*models.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.pushedBy, f.pushed = owner, rec
	rec.ID, rec.Owner, rec.SeqTime = "r-1", owner, time.UnixMilli(1700000000000)
	return &rec, nil
}

func (f *fakeRecords) Update(ctx context.Context, rec models.Record) (*models.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec.Owner, rec.SeqTime = "alice", time.UnixMilli(1700000000001)
	return &rec, nil
}

func (f *fakeRecords) Delete(ctx context.Context, category, id string) error { return f.err }

func (f *fakeRecords) Pull(ctx context.Context, q models.RecordQuery) (*services.PullResult, error) {
	f.pullQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return f.pullResp, nil
}

// ---- helpers ----

func newServer(u userSvc, r recordSvc) *GRPCServer {
	s := newTestServer("k")
	s.users, s.records = u, r
	return s
}

func authed(t *testing.T) context.Context {
	t.Helper()
	return context.WithValue(context.Background(), claimsKey, &auth.Claims{UserID: "u1", UserName: "alice"})
}

func encode(t *testing.T, v any) *structpb.Struct {
	t.Helper()
	s, err := wire.Encode(v)
	require.NoError(t, err)
	return s
}

func decode[T any](t *testing.T, s *structpb.Struct) T {
	t.Helper()
	var v T
	require.NoError(t, wire.Decode(s, &v))
	return v
}

// ---- tests ----

func TestPing_OK(t *testing.T) {
	s := newServer(&fakeUsers{}, &fakeRecords{})
	resp, err := s.Ping(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "OK", decode[wire.PingResponse](t, resp).Status)
}

func TestToStatus(t *testing.T) {
	s := newServer(&fakeUsers{}, &fakeRecords{})
	tests := []struct {
		err  error
		code codes.Code
	}{
		{err: common.ErrorValidation, code: codes.InvalidArgument},
		{err: wire.ErrMalformed, code: codes.InvalidArgument},
		{err: common.ErrorNotFound, code: codes.NotFound},
		{err: common.ErrorAlreadyExists, code: codes.AlreadyExists},
		{err: common.ErrorUnauthorized, code: codes.Unauthenticated},
		{err: common.ErrRefreshTokenExpired, code: codes.Unauthenticated},
		{err: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{err: errors.New("oops"), code: codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, status.Code(s.toStatus(context.Background(), tt.err)), tt.err.Error())
	}
}

func TestRegister(t *testing.T) {
	s := newServer(&fakeUsers{}, &fakeRecords{})
	_, err := s.Register(context.Background(), encode(t, wire.Credentials{Username: "alice", Password: "pw"}))
	require.NoError(t, err)

	s = newServer(&fakeUsers{regErr: common.ErrorAlreadyExists}, &fakeRecords{})
	_, err = s.Register(context.Background(), encode(t, wire.Credentials{Username: "alice", Password: "pw"}))
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
}

func TestLogin(t *testing.T) {
	u := &fakeUsers{loginResp: &services.TokenPair{AccessToken: "a", RefreshToken: "r"}}
	s := newServer(u, &fakeRecords{})
	resp, err := s.Login(context.Background(), encode(t, wire.Credentials{Username: "alice", Password: "pw"}))
	require.NoError(t, err)
	assert.Equal(t, wire.Tokens{AccessToken: "a", RefreshToken: "r"}, decode[wire.Tokens](t, resp))

	s = newServer(&fakeUsers{loginErr: common.ErrorUnauthorized}, &fakeRecords{})
	_, err = s.Login(context.Background(), encode(t, wire.Credentials{Username: "alice"}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestRefreshToken(t *testing.T) {
	u := &fakeUsers{refreshResp: &services.TokenPair{AccessToken: "a2", RefreshToken: "r2"}}
	s := newServer(u, &fakeRecords{})
	resp, err := s.RefreshToken(context.Background(), encode(t, wire.RefreshRequest{RefreshToken: "r1"}))
	require.NoError(t, err)
	assert.Equal(t, "a2", decode[wire.Tokens](t, resp).AccessToken)

	s = newServer(&fakeUsers{refreshErr: errors.New("oops")}, &fakeRecords{})
	_, err = s.RefreshToken(context.Background(), encode(t, wire.RefreshRequest{RefreshToken: "r1"}))
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestLogout_UsesCaller(t *testing.T) {
	u := &fakeUsers{}
	s := newServer(u, &fakeRecords{})

	_, err := s.Logout(context.Background(), encode(t, wire.RefreshRequest{RefreshToken: "r"}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = s.Logout(authed(t), encode(t, wire.RefreshRequest{RefreshToken: "r"}))
	require.NoError(t, err)
	assert.Equal(t, "u1", u.logoutUser)
}

func TestPush_OwnerFromToken(t *testing.T) {
	r := &fakeRecords{}
	s := newServer(&fakeUsers{}, r)

	in := wire.PushRequest{Record: wire.Record{
		Category: "markup", IncidentID: 4, RoomID: 2, Owner: "mallory", Payload: json.RawMessage(`{"x":1}`),
	}}
	resp, err := s.Push(authed(t), encode(t, in))
	require.NoError(t, err)

	assert.Equal(t, "alice", r.pushedBy)
	assert.Equal(t, int64(4), r.pushed.IncidentID)

	out := decode[wire.PushResponse](t, resp).Record
	assert.Equal(t, "r-1", out.ID)
	assert.Equal(t, "alice", out.Owner)
	assert.Equal(t, int64(1700000000000), out.SeqTime)
	assert.JSONEq(t, `{"x":1}`, string(out.Payload))
}

func TestRecordMethods_RequireClaims(t *testing.T) {
	s := newServer(&fakeUsers{}, &fakeRecords{})
	ctx := context.Background()
	empty := encode(t, wire.Empty{})

	for name, call := range map[string]func(context.Context, *structpb.Struct) (*structpb.Struct, error){
		"push": s.Push, "update": s.Update, "delete": s.Delete, "pull": s.Pull,
	} {
		_, err := call(ctx, empty)
		assert.Equal(t, codes.Unauthenticated, status.Code(err), name)
	}
}

func TestUpdateDelete_MapErrors(t *testing.T) {
	s := newServer(&fakeUsers{}, &fakeRecords{err: common.ErrorNotFound})

	_, err := s.Update(authed(t), encode(t, wire.PushRequest{Record: wire.Record{ID: "x", Category: "markup", Payload: json.RawMessage(`{}`)}}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = s.Delete(authed(t), encode(t, wire.DeleteRequest{Category: "markup", ID: "x"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestPull_EncodesRecordsAndTombstones(t *testing.T) {
	r := &fakeRecords{pullResp: &services.PullResult{
		Records: []models.Record{{ID: "r-1", Category: "hazards", IncidentID: 4, Owner: "bob",
			Payload: json.RawMessage(`{"h":true}`), SeqTime: time.UnixMilli(1700000000500)}},
		Deleted: []string{"r-0"},
		Until:   time.UnixMilli(1700000000900),
	}}
	s := newServer(&fakeUsers{}, r)

	resp, err := s.Pull(authed(t), encode(t, wire.PullRequest{Category: "hazards", IncidentID: 4, Since: 1700000000000}))
	require.NoError(t, err)

	assert.Equal(t, "hazards", r.pullQuery.Category)
	assert.True(t, r.pullQuery.Since.Equal(time.UnixMilli(1700000000000)))

	out := decode[wire.PullResponse](t, resp)
	require.Len(t, out.Records, 1)
	rec, err := wire.DecodeRecord(out.Records[0])
	require.NoError(t, err)
	assert.Equal(t, "r-1", rec.ID)
	assert.Equal(t, int64(1700000000500), rec.SeqTime)
	assert.Equal(t, []string{"r-0"}, out.Deleted)
	assert.Equal(t, int64(1700000000900), out.Until)
}

func TestPull_ZeroSinceMeansEverything(t *testing.T) {
	r := &fakeRecords{pullResp: &services.PullResult{}}
	s := newServer(&fakeUsers{}, r)

	resp, err := s.Pull(authed(t), encode(t, wire.PullRequest{Category: "markup"}))
	require.NoError(t, err)
	assert.True(t, r.pullQuery.Since.IsZero())

	out := decode[wire.PullResponse](t, resp)
	assert.Empty(t, out.Records)
	assert.Empty(t, out.Deleted)
	assert.Zero(t, out.Until)
}
