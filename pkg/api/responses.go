package api

import (
	"github.com/codeready-toolchain/meshgate/pkg/conversation"
)

// pageMeta is the `meta` half of the `{data, meta}` pagination envelope
// (spec §6.1 "GET /sessions... {data, meta:{pageNumber,pageSize,...}}").
type pageMeta struct {
	PageNumber int  `json:"pageNumber"`
	PageSize   int  `json:"pageSize"`
	TotalCount int64 `json:"totalCount"`
	TotalPages int  `json:"totalPages"`
	NextPage   *int `json:"nextPage,omitempty"`
}

type pageEnvelope[T any] struct {
	Data []T      `json:"data"`
	Meta pageMeta `json:"meta"`
}

func newPageEnvelope[T any](p conversation.Page[T]) pageEnvelope[T] {
	data := p.Data
	if data == nil {
		data = []T{}
	}
	return pageEnvelope[T]{
		Data: data,
		Meta: pageMeta{
			PageNumber: p.PageNumber,
			PageSize:   p.PageSize,
			TotalCount: p.TotalCount,
			TotalPages: p.TotalPages(),
			NextPage:   p.NextPage(),
		},
	}
}

// rpcResult is the JSON-RPC-shaped success envelope used by /tasks/* paths
// (spec §6.1 "returns {result: {...}}").
type rpcResult struct {
	Result any `json:"result"`
}
