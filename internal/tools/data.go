package tools

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/addrkv/internal/coordinator"
)

const (
	GetDataTool = "get-data"
	SetDataTool = "set-data"
)

// maxTTLSeconds keeps ttl*time.Second inside a time.Duration.
const maxTTLSeconds = float64(math.MaxInt64 / int64(time.Second))

// Service is the coordinator surface the tools call.
type Service interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, record string, ttl time.Duration) (string, error)
}

// NewGetDataTool describes the "get-data" tool.
func NewGetDataTool() mcp.Tool {
	return mcp.NewTool(GetDataTool,
		mcp.WithDescription(multiline(
			"Returns the record stored under an address",
			"\nUsage notes:",
			"- Unknown addresses fail fast with CuckooFilterLookupFailed",
			"- The record is returned as the serialized JSON text it was stored with",
		)),
		mcp.WithString("address", mcp.Required(), mcp.Description("The address to look up")),
	)
}

// NewSetDataTool describes the "set-data" tool.
func NewSetDataTool() mcp.Tool {
	return mcp.NewTool(SetDataTool,
		mcp.WithDescription(multiline(
			"Stores a JSON record under an address",
			"\nUsage notes:",
			"- data must be a serialized JSON document",
			"- The record is cached for ttl seconds and persisted durably",
			"- Writing the same address again overwrites the record",
		)),
		mcp.WithString("address", mcp.Required(), mcp.Description("The address to store under")),
		mcp.WithString("data", mcp.Required(), mcp.Description("Serialized JSON record")),
		mcp.WithNumber("ttl", mcp.Description("Cache lifetime in seconds; omitted uses the server default")),
	)
}

// GetDataHandler returns the MCP tool handler for the "get-data" tool.
func GetDataHandler(svc Service) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		address, err := req.RequireString("address")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		record, err := svc.Get(ctx, address)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(record), nil
	}
}

// SetDataHandler returns the MCP tool handler for the "set-data" tool.
func SetDataHandler(svc Service, defaultTTL time.Duration) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		address, err := req.RequireString("address")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := req.RequireString("data")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		secs := req.GetFloat("ttl", defaultTTL.Seconds())
		if math.IsNaN(secs) || secs < 0 || secs > maxTTLSeconds {
			return mcp.NewToolResultError(fmt.Sprintf("ttl must be between 0 and %d seconds", int64(maxTTLSeconds))), nil
		}
		ttl := time.Duration(secs * float64(time.Second))

		key, err := svc.Set(ctx, address, data, ttl)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(key), nil
	}
}

// toolError renders "<code>: <message>" for coordinator failures.
func toolError(err error) *mcp.CallToolResult {
	if code, ok := coordinator.CodeOf(err); ok {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", code, code.Message()))
	}
	return mcp.NewToolResultError(err.Error())
}

func multiline(lines ...string) string { return strings.Join(lines, "\n") }
