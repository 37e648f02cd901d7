package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"github.com/twwat/imxup-sub002/internal/driver"
	"github.com/twwat/imxup-sub002/internal/logging"
	"github.com/twwat/imxup-sub002/internal/queue"
	"github.com/twwat/imxup-sub002/internal/store"
)

// Server accepts CLI connections on a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer binds the control socket and registers the service.
func NewServer(ctx context.Context, path string, mgr *queue.Manager, drv *driver.Driver, st *store.Store, logger *slog.Logger) (*Server, error) {
	if mgr == nil || drv == nil || st == nil {
		return nil, errors.New("ipc server requires manager, driver, and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	svc := &service{mgr: mgr, drv: drv, st: st, logger: logger}
	if err := rpcServer.RegisterName("Imxup", svc); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger.With(logging.String(logging.FieldComponent, "ipc")),
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve accepts connections until the context ends.
func (s *Server) Serve() {
	s.logger.Debug("control socket listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("socket cleanup failed",
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

// service implements the RPC surface. Methods follow net/rpc conventions:
// exported, two args, error return.
type service struct {
	mgr    *queue.Manager
	drv    *driver.Driver
	st     *store.Store
	logger *slog.Logger
}

func (s *service) Add(req AddRequest, resp *AddResponse) error {
	if req.Path == "" {
		return errors.New("path is required")
	}
	g, err := s.mgr.Add(req.Path, req.Name, req.Template, req.TabID)
	if err != nil {
		return err
	}
	if req.Start {
		s.mgr.AutoStartOnReady(g.Path)
	}
	resp.Item = FromGallery(g)
	return nil
}

func (s *service) Start(req StartRequest, resp *StartResponse) error {
	paths := req.Paths
	if len(paths) == 0 {
		for _, g := range s.mgr.Items() {
			if g.Status == store.StatusReady || g.Status == store.StatusPaused ||
				g.Status == store.StatusIncomplete || g.Status == store.StatusUploadFailed {
				paths = append(paths, g.Path)
			}
		}
	}
	var errs []error
	for _, path := range paths {
		if err := s.mgr.StartItem(path); err != nil {
			errs = append(errs, err)
			continue
		}
		resp.Started++
	}
	if resp.Started == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *service) Stop(req StopRequest, resp *StopResponse) error {
	if req.Path == "" {
		return errors.New("path is required")
	}
	if err := s.drv.Stop(req.Path); err != nil {
		return err
	}
	resp.Stopped = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.PID = os.Getpid()
	resp.DBPath = s.st.Path()
	resp.Counts = make(map[string]int)
	for status, n := range s.mgr.Counts() {
		resp.Counts[string(status)] = n
		resp.Items += n
	}
	if path, ok := s.drv.Active(); ok {
		resp.ActivePath = path
	}
	return nil
}

func (s *service) List(req ListRequest, resp *ListResponse) error {
	var want map[store.Status]struct{}
	if len(req.Statuses) > 0 {
		want = make(map[store.Status]struct{}, len(req.Statuses))
		for _, raw := range req.Statuses {
			status, ok := store.ParseStatus(raw)
			if !ok {
				return fmt.Errorf("unknown status %q", raw)
			}
			want[status] = struct{}{}
		}
	}
	for _, g := range s.mgr.Items() {
		if want != nil {
			if _, ok := want[g.Status]; !ok {
				continue
			}
		}
		if req.TabID != 0 && g.TabID != req.TabID {
			continue
		}
		resp.Items = append(resp.Items, FromGallery(g))
	}
	return nil
}

func (s *service) Remove(req RemoveRequest, resp *RemoveResponse) error {
	var errs []error
	for _, path := range req.Paths {
		if err := s.mgr.RemoveItem(path); err != nil {
			errs = append(errs, err)
			continue
		}
		resp.Removed++
	}
	if resp.Removed == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *service) Clear(req ClearRequest, resp *ClearResponse) error {
	statuses := make([]store.Status, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		status, ok := store.ParseStatus(raw)
		if !ok {
			return fmt.Errorf("unknown status %q", raw)
		}
		statuses = append(statuses, status)
	}
	resp.Removed = s.mgr.ClearByStatus(statuses...)
	return nil
}

func (s *service) Move(req MoveRequest, resp *MoveResponse) error {
	if err := s.mgr.MoveItem(req.Path, req.Index); err != nil {
		return err
	}
	resp.Moved = true
	return nil
}

func (s *service) TabList(_ TabListRequest, resp *TabListResponse) error {
	tabs, err := s.st.Tabs(context.Background())
	if err != nil {
		return err
	}
	for _, tab := range tabs {
		resp.Tabs = append(resp.Tabs, TabInfo{ID: tab.ID, Name: tab.Name, System: tab.System})
	}
	return nil
}

func (s *service) TabCreate(req TabCreateRequest, resp *TabCreateResponse) error {
	if req.Name == "" {
		return errors.New("tab name is required")
	}
	tab, err := s.st.CreateTab(context.Background(), req.Name, req.Color)
	if err != nil {
		return err
	}
	resp.Tab = TabInfo{ID: tab.ID, Name: tab.Name, System: tab.System}
	return nil
}

func (s *service) TabRename(req TabRenameRequest, resp *TabRenameResponse) error {
	if err := s.st.RenameTab(context.Background(), req.ID, req.Name); err != nil {
		return err
	}
	resp.Renamed = true
	return nil
}

func (s *service) TabDelete(req TabDeleteRequest, resp *TabDeleteResponse) error {
	if err := s.st.DeleteTab(context.Background(), req.ID, req.ReassignTo); err != nil {
		return err
	}
	resp.Deleted = true
	return nil
}
