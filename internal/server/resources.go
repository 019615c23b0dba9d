package server

import (
	"context"
	"encoding/json"

	"github.com/golovatskygroup/billy-mcp/pkg/mcp"
)

func (s *Server) handleListResources(req *mcp.Request) *mcp.Response {
	resp, err := mcp.NewResponse(req.ID, mcp.ListResourcesResult{Resources: s.adapter.Resources()})
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

func (s *Server) handleReadResource(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params mcp.ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}

	block, err := s.adapter.Describe(ctx, params.URI)
	if err != nil {
		return errorResponse(req.ID, err)
	}

	resp, err := mcp.NewResponse(req.ID, mcp.ReadResourceResult{Contents: []mcp.ContentBlock{block}})
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}
