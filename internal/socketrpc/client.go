package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// Client implements model.LiveQuerier over a Unix domain socket using JSON-RPC 2.0.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	timeout time.Duration
	scanner *bufio.Scanner
	encoder *json.Encoder
}

var _ model.LiveQuerier = (*Client)(nil)

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), 16*scannerMaxTokenSize)
	return &Client{
		conn:    conn,
		timeout: 10 * time.Second,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(method string, params interface{}, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	var paramsData json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("socketrpc: marshal params: %w", err)
		}
		paramsData = data
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("socketrpc: response id %d, want %d", resp.ID, id)
	}
	if resp.Error != nil {
		return resp.Error
	}

	if dest != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) LatestStats() (*model.Stats, error) {
	var result *model.Stats
	err := c.call("LatestStats", nil, &result)
	return result, err
}

func (c *Client) CurrentAlert() (*model.Alert, error) {
	var result *model.Alert
	err := c.call("CurrentAlert", nil, &result)
	return result, err
}

func (c *Client) RecentAlerts(limit int) ([]model.AlertTransition, error) {
	var result []model.AlertTransition
	err := c.call("RecentAlerts", map[string]interface{}{"Limit": limit}, &result)
	return result, err
}

func (c *Client) Counters() (model.Counters, error) {
	var result model.Counters
	err := c.call("Counters", nil, &result)
	return result, err
}

func (c *Client) RateSamples(limit int) ([]model.RateSample, error) {
	var result []model.RateSample
	err := c.call("RateSamples", map[string]interface{}{"Limit": limit}, &result)
	return result, err
}
