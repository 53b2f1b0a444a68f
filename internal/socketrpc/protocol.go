package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes model.LiveQuerier over a Unix domain socket.
// Each method maps 1:1 to the LiveQuerier interface.
//
//   Method          Params           Result
//   ─────────────   ──────────────   ───────────────────────
//   LatestStats     (none)           *Stats (null before the first span)
//   CurrentAlert    (none)           *Alert (null when idle)
//   RecentAlerts    {Limit: int}     []AlertTransition, newest first
//   Counters        (none)           Counters
//   RateSamples     {Limit: int}     []RateSample, oldest first
//
// Methods with a Limit accept empty or null params; zero means the server default.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error (query failure)

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/trafficwatch/trafficwatch.sock, falling back to
// ~/.local/state/trafficwatch/trafficwatch.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "trafficwatch", "trafficwatch.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "trafficwatch.sock")
	}
	return filepath.Join(home, ".local", "state", "trafficwatch", "trafficwatch.sock")
}
