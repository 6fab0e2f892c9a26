package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/dmitrijs2005/fieldsync/internal/common"
	"github.com/dmitrijs2005/fieldsync/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type invoker interface {
	Invoke(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error
}

type GRPCClient struct {
	endpointURL string
	timeout     time.Duration
	conn        *grpc.ClientConn
	client      invoker
	creds       Credentials

	refreshMu sync.Mutex
}

func withIdentity(ctx context.Context, token, deviceID string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}
	if deviceID != "" {
		md.Set(common.DeviceIDHeaderName, deviceID)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	return st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	access, _ := s.creds.Tokens()
	deviceID := s.creds.DeviceID()

	err := invoker(withIdentity(ctx, access, deviceID), method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) || method == wire.MethodRefreshToken {
		return err
	}

	fresh, rerr := s.refresh(ctx, access)
	if rerr != nil {
		return rerr
	}

	return invoker(withIdentity(ctx, fresh, deviceID), method, req, reply, cc, opts...)
}

// refresh exchanges the refresh token once for every caller that saw stale
// as its access token.
func (s *GRPCClient) refresh(ctx context.Context, stale string) (string, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	access, refresh := s.creds.Tokens()
	if access != stale {
		return access, nil
	}
	if refresh == "" {
		return "", ErrUnauthorized
	}

	var tokens wire.Tokens
	if err := s.client.Invoke(ctx, wire.MethodRefreshToken, wire.RefreshRequest{RefreshToken: refresh}, &tokens); err != nil {
		return "", s.mapError(err)
	}

	if err := s.creds.UpdateTokens(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

// NewGRPCClient connects lazily to endpointURL. timeout bounds every call
// that has no earlier deadline. opts are added to the default dial options.
func NewGRPCClient(endpointURL string, timeout time.Duration, creds Credentials, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, timeout: timeout, creds: creds}
	err := c.InitGRPCClient(opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = wire.NewSyncClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) call(ctx context.Context, method string, req, resp any) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.mapError(s.client.Invoke(ctx, method, req, resp))
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	var resp wire.PingResponse
	if err := s.call(ctx, wire.MethodPing, wire.Empty{}, &resp); err != nil {
		return err
	}

	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Register(ctx context.Context, username, password string) error {
	req := wire.Credentials{Username: username, Password: password, DeviceID: s.creds.DeviceID()}
	return s.call(ctx, wire.MethodRegister, req, nil)
}

func (s *GRPCClient) Login(ctx context.Context, username, password string) (string, string, error) {
	req := wire.Credentials{Username: username, Password: password, DeviceID: s.creds.DeviceID()}

	var tokens wire.Tokens
	if err := s.call(ctx, wire.MethodLogin, req, &tokens); err != nil {
		return "", "", err
	}
	return tokens.AccessToken, tokens.RefreshToken, nil
}

// Logout revokes the refresh token on the server.
func (s *GRPCClient) Logout(ctx context.Context) error {
	_, refresh := s.creds.Tokens()
	return s.call(ctx, wire.MethodLogout, wire.RefreshRequest{RefreshToken: refresh}, nil)
}

func toRecord(e *models.Entity) wire.Record {
	return wire.Record{
		ID:         e.RemoteID,
		Category:   string(e.Category),
		IncidentID: e.Scope.IncidentID,
		RoomID:     e.Scope.RoomID,
		Owner:      e.Owner,
		Payload:    e.Payload,
		SeqTime:    e.SeqTime.UnixMilli(),
	}
}

func fromRecord(r wire.Record) (*models.Entity, error) {
	category, err := models.ParseCategory(r.Category)
	if err != nil {
		return nil, fmt.Errorf("%w: record %s: %v", wire.ErrMalformed, r.ID, err)
	}
	e := &models.Entity{
		RemoteID: r.ID,
		Category: category,
		Scope:    models.Scope{IncidentID: r.IncidentID, RoomID: r.RoomID}.ForCategory(category),
		Owner:    r.Owner,
		Payload:  r.Payload,
	}
	if r.SeqTime > 0 {
		e.SeqTime = time.UnixMilli(r.SeqTime).UTC()
	}
	return e, nil
}

func (s *GRPCClient) Push(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	var resp wire.PushResponse
	if err := s.call(ctx, wire.MethodPush, wire.PushRequest{Record: toRecord(e)}, &resp); err != nil {
		return nil, err
	}
	if err := resp.Record.Validate(); err != nil {
		return nil, err
	}
	return fromRecord(resp.Record)
}

func (s *GRPCClient) Update(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	if e.RemoteID == "" {
		return nil, fmt.Errorf("update entity %d: %w", e.ID, common.ErrorValidation)
	}
	var resp wire.PushResponse
	if err := s.call(ctx, wire.MethodUpdate, wire.PushRequest{Record: toRecord(e)}, &resp); err != nil {
		return nil, err
	}
	if err := resp.Record.Validate(); err != nil {
		return nil, err
	}
	return fromRecord(resp.Record)
}

func (s *GRPCClient) Delete(ctx context.Context, category models.Category, remoteID string) error {
	return s.call(ctx, wire.MethodDelete, wire.DeleteRequest{Category: string(category), ID: remoteID}, nil)
}

// Pull fetches the records of req.Category changed after req.Since.
func (s *GRPCClient) Pull(ctx context.Context, req models.PullRequest) (*models.PullResult, error) {
	in := wire.PullRequest{
		Category:   string(req.Category),
		IncidentID: req.Scope.IncidentID,
		RoomID:     req.Scope.RoomID,
	}
	if !req.Since.IsZero() {
		in.Since = req.Since.UnixMilli()
	}

	var resp wire.PullResponse
	if err := s.call(ctx, wire.MethodPull, in, &resp); err != nil {
		return nil, err
	}

	res := &models.PullResult{Deleted: resp.Deleted}
	if resp.Until > 0 {
		res.Until = time.UnixMilli(resp.Until).UTC()
	}
	for _, raw := range resp.Records {
		r, err := wire.DecodeRecord(raw)
		if err != nil {
			res.Invalid = append(res.Invalid, err)
			continue
		}
		e, err := fromRecord(r)
		if err != nil {
			res.Invalid = append(res.Invalid, err)
			continue
		}
		if e.Category != req.Category {
			res.Invalid = append(res.Invalid, fmt.Errorf("%w: record %s has category %s", wire.ErrMalformed, r.ID, r.Category))
			continue
		}
		res.Records = append(res.Records, *e)
	}
	return res, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Canceled:
		return ErrUnavailable
	case codes.AlreadyExists, codes.Aborted, codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", ErrConflict, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
