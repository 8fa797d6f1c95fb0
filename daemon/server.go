package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/jonoirwinrsa/image-service/contrib/log"
	"github.com/jonoirwinrsa/image-service/contrib/transport"
)

// AdminServer is the transport.Server wrapping NewAdminMux, listening
// through the Controller so its socket survives a live upgrade.
type AdminServer struct {
	*http.Server

	ctrl     *Controller
	addr     string
	listener net.Listener
	log      *log.Helper
}

// NewAdminServer builds an AdminServer bound to addr, not yet listening.
func NewAdminServer(ctrl *Controller, addr string) *AdminServer {
	return &AdminServer{
		Server: &http.Server{
			Addr:    addr,
			Handler: NewAdminMux(ctrl),
		},
		ctrl: ctrl,
		addr: addr,
		log:  log.NewHelper(log.GetLogger()),
	}
}

func (s *AdminServer) Start(ctx context.Context) error {
	ln, err := s.ctrl.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.BaseContext = func(net.Listener) context.Context { return ctx }

	s.log.Infof("admin surface listening on %s", s.addr)
	if err := s.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *AdminServer) Stop(ctx context.Context) error {
	return s.Shutdown(ctx)
}

var _ transport.Server = (*AdminServer)(nil)
