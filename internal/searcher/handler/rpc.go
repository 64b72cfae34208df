package handler

import (
	"context"
	"encoding/json"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/proto"
)

// RegisterRPC exposes search, cache invalidation and health on srv.
// checker may be nil, in which case health always reports SERVING.
func (h *Handler) RegisterRPC(srv *grpc.Server, checker *health.Checker) {
	srv.Register(proto.MethodSearch, h.rpcSearch)
	srv.Register(proto.MethodInvalidateCache, h.rpcInvalidate)
	srv.Register(proto.MethodHealth, func(ctx context.Context, _ json.RawMessage) (any, error) {
		status := "SERVING"
		if checker != nil && !checker.Run(ctx).Status.Serving() {
			status = "NOT_SERVING"
		}
		return proto.HealthCheckResponse{Status: status}, nil
	})
}

func (h *Handler) rpcSearch(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.SearchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, apperrors.Invalidf("decoding search request: %v", err)
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = h.defaultPageSize
	}
	rs, err := h.searcher.Search(ctx, req.Query, req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}
	return toProto(rs), nil
}

func (h *Handler) rpcInvalidate(ctx context.Context, raw json.RawMessage) (any, error) {
	if h.cache == nil {
		return proto.InvalidateCacheResponse{}, nil
	}
	var req proto.InvalidateCacheRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, apperrors.Invalidf("decoding invalidate request: %v", err)
		}
	}
	removed, err := h.invalidate(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	return proto.InvalidateCacheResponse{Removed: int(removed)}, nil
}

func toProto(rs *executor.ResultSet) proto.SearchResponse {
	out := proto.SearchResponse{
		Query:        rs.Query,
		Page:         rs.Page,
		PageSize:     rs.PageSize,
		Results:      make([]proto.SearchResult, len(rs.Results)),
		Correction:   rs.Correction,
		TotalMatches: rs.TotalMatches,
		ElapsedNanos: rs.ElapsedNanos,
		Cached:       rs.Cached,
	}
	for i, r := range rs.Results {
		out.Results[i] = proto.SearchResult{Rank: r.Rank, URL: r.URL, Title: r.Title, Keywords: r.Keywords}
	}
	return out
}
