package rpcchannel

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

// Server wraps a *grpc.Server hosting a single WorkerChannelServer
// implementation on a loopback TCP listener, grounded on
// producer/grpc/server.go's StartGRPCServer (net.Listen, grpc.NewServer,
// reflection.Register).
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
}

// NewServer binds a listener on addr (use "127.0.0.1:0" to let the OS pick
// a free port) and registers impl as the WorkerChannel service. It does
// not start serving until Serve is called.
func NewServer(addr string, impl WorkerChannelServer) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpcchannel: failed to listen on %s: %w", addr, err)
	}

	s := grpc.NewServer()
	RegisterWorkerChannelServer(s, impl)
	reflection.Register(s)

	return &Server{grpcServer: s, listener: lis}, nil
}

// Addr returns the listener's bound address, useful after dialing "…:0".
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks, accepting connections until Stop is called.
func (s *Server) Serve() error {
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully stops the server and releases the listener.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
