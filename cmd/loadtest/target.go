package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/proto"
)

// target issues one search. status is the HTTP status, or the
// HTTP-equivalent status an RPC error carries. err is a transport failure.
type target interface {
	search(ctx context.Context, query string, page, size int) (resp *proto.SearchResponse, status int, err error)
	close() error
}

type httpTarget struct {
	baseURL string
	client  *http.Client
}

func newHTTPTarget(baseURL string, concurrency int) *httpTarget {
	return &httpTarget{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        concurrency * 2,
				MaxIdleConnsPerHost: concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (t *httpTarget) search(ctx context.Context, query string, page, size int) (*proto.SearchResponse, int, error) {
	searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&page=%d&size=%d",
		t.baseURL, url.QueryEscape(query), page, size)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}
	var out proto.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return &out, resp.StatusCode, nil
}

func (t *httpTarget) close() error {
	t.client.CloseIdleConnections()
	return nil
}

// rpcTarget holds one connection per worker; grpc.Client serializes calls.
type rpcTarget struct {
	client *grpc.Client
}

func newRPCTarget(addr string) (*rpcTarget, error) {
	c, err := grpc.Dial(addr)
	if err != nil {
		return nil, err
	}
	return &rpcTarget{client: c}, nil
}

func (t *rpcTarget) search(ctx context.Context, query string, page, size int) (*proto.SearchResponse, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var out proto.SearchResponse
	err := t.client.CallContext(ctx, proto.MethodSearch, proto.SearchRequest{Query: query, Page: page, PageSize: size}, &out)
	var remote *grpc.RemoteError
	switch {
	case errors.As(err, &remote):
		return nil, remote.Code, nil
	case err != nil:
		return nil, 0, err
	}
	return &out, http.StatusOK, nil
}

func (t *rpcTarget) close() error { return t.client.Close() }
