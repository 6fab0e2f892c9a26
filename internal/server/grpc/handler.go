package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/common"
	"github.com/dmitrijs2005/fieldsync/internal/server/models"
	"github.com/dmitrijs2005/fieldsync/internal/wire"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, wire.ErrMalformed), errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, common.ErrRefreshTokenExpired.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error(ctx, err.Error())
	return status.Error(codes.Internal, "internal error")
}

func (s *GRPCServer) reply(ctx context.Context, v any) (*structpb.Struct, error) {
	out, err := wire.Encode(v)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return out, nil
}

func toModel(r wire.Record) models.Record {
	return models.Record{
		ID:         r.ID,
		Category:   r.Category,
		IncidentID: r.IncidentID,
		RoomID:     r.RoomID,
		Payload:    r.Payload,
	}
}

func toWire(r *models.Record) wire.Record {
	return wire.Record{
		ID:         r.ID,
		Category:   r.Category,
		IncidentID: r.IncidentID,
		RoomID:     r.RoomID,
		Owner:      r.Owner,
		Payload:    r.Payload,
		SeqTime:    r.SeqTime.UnixMilli(),
	}
}

func (s *GRPCServer) Ping(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, wire.PingResponse{Status: "OK"})
}

func (s *GRPCServer) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req wire.Credentials
	if err := wire.Decode(in, &req); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	u, err := s.users.Register(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Registered", "username", u.UserName, "id", u.ID)
	return s.reply(ctx, wire.Empty{})
}

func (s *GRPCServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req wire.Credentials
	if err := wire.Decode(in, &req); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	tokens, err := s.users.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, wire.Tokens{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
}

func (s *GRPCServer) RefreshToken(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req wire.RefreshRequest
	if err := wire.Decode(in, &req); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	tokens, err := s.users.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, wire.Tokens{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
}

func (s *GRPCServer) Logout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	var req wire.RefreshRequest
	if err := wire.Decode(in, &req); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	if err := s.users.Logout(ctx, claims.UserID, req.RefreshToken); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, wire.Empty{})
}

func (s *GRPCServer) Push(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	var req wire.PushRequest
	if err := wire.Decode(in, &req); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	rec, err := s.records.Push(ctx, claims.UserName, toModel(req.Record))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, wire.PushResponse{Record: toWire(rec)})
}

func (s *GRPCServer) Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, ok := claimsFromContext(ctx); !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	var req wire.PushRequest
	if err := wire.Decode(in, &req); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	rec, err := s.records.Update(ctx, toModel(req.Record))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, wire.PushResponse{Record: toWire(rec)})
}

func (s *GRPCServer) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, ok := claimsFromContext(ctx); !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	var req wire.DeleteRequest
	if err := wire.Decode(in, &req); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	if err := s.records.Delete(ctx, req.Category, req.ID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, wire.Empty{})
}

func (s *GRPCServer) Pull(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, ok := claimsFromContext(ctx); !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	var req wire.PullRequest
	if err := wire.Decode(in, &req); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	q := models.RecordQuery{Category: req.Category, IncidentID: req.IncidentID, RoomID: req.RoomID}
	if req.Since > 0 {
		q.Since = time.UnixMilli(req.Since).UTC()
	}

	res, err := s.records.Pull(ctx, q)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out := wire.PullResponse{Records: make([]json.RawMessage, 0, len(res.Records)), Deleted: res.Deleted}
	if out.Deleted == nil {
		out.Deleted = []string{}
	}
	if !res.Until.IsZero() {
		out.Until = res.Until.UnixMilli()
	}
	for i := range res.Records {
		raw, err := json.Marshal(toWire(&res.Records[i]))
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}
		out.Records = append(out.Records, raw)
	}
	return s.reply(ctx, out)
}
