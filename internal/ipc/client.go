package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the control socket.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:   conn,
		client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn)),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) Add(req AddRequest) (*AddResponse, error) {
	var resp AddResponse
	if err := c.client.Call("Imxup.Add", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Start(paths []string) (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Imxup.Start", StartRequest{Paths: paths}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Stop(path string) (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Imxup.Stop", StopRequest{Path: path}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Imxup.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) List(req ListRequest) (*ListResponse, error) {
	var resp ListResponse
	if err := c.client.Call("Imxup.List", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Remove(paths []string) (*RemoveResponse, error) {
	var resp RemoveResponse
	if err := c.client.Call("Imxup.Remove", RemoveRequest{Paths: paths}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Clear(statuses []string) (*ClearResponse, error) {
	var resp ClearResponse
	if err := c.client.Call("Imxup.Clear", ClearRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Move(path string, index int) (*MoveResponse, error) {
	var resp MoveResponse
	if err := c.client.Call("Imxup.Move", MoveRequest{Path: path, Index: index}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) TabList() (*TabListResponse, error) {
	var resp TabListResponse
	if err := c.client.Call("Imxup.TabList", TabListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) TabCreate(name, color string) (*TabCreateResponse, error) {
	var resp TabCreateResponse
	if err := c.client.Call("Imxup.TabCreate", TabCreateRequest{Name: name, Color: color}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) TabRename(id int64, name string) (*TabRenameResponse, error) {
	var resp TabRenameResponse
	if err := c.client.Call("Imxup.TabRename", TabRenameRequest{ID: id, Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) TabDelete(id, reassignTo int64) (*TabDeleteResponse, error) {
	var resp TabDeleteResponse
	if err := c.client.Call("Imxup.TabDelete", TabDeleteRequest{ID: id, ReassignTo: reassignTo}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
