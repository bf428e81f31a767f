package env

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "cartridge.live.v1.Environment"

// CodecName is the content-subtype environment calls are encoded with.
const CodecName = "json"

const (
	resetMethod    = "/" + ServiceName + "/Reset"
	stepMethod     = "/" + ServiceName + "/Step"
	describeMethod = "/" + ServiceName + "/Describe"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ResetRequest starts a new episode. A non-zero Seed reseeds environments
// that implement Seeder before the reset.
type ResetRequest struct {
	Seed uint64 `json:"seed,omitempty"`
}

// ResetResponse carries the initial observation per slot.
type ResetResponse struct {
	Observations [][]float64 `json:"observations"`
}

// StepRequest carries one action per slot.
type StepRequest struct {
	Actions []int `json:"actions"`
}

// DescribeRequest asks the environment for its layout.
type DescribeRequest struct{}

// Server is implemented by environments exposed over gRPC.
type Server interface {
	Reset(context.Context, *ResetRequest) (*ResetResponse, error)
	Step(context.Context, *StepRequest) (*StepResult, error)
	Describe(context.Context, *DescribeRequest) (*Spec, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reset", Handler: resetHandler},
		{MethodName: "Step", Handler: stepHandler},
		{MethodName: "Describe", Handler: describeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cartridge/live/v1/environment",
}

// RegisterServer registers srv on s.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

func resetHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ResetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resetMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Reset(ctx, req.(*ResetRequest))
	})
}

func stepHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StepRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Step(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: stepMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Step(ctx, req.(*StepRequest))
	})
}

func describeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DescribeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: describeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Describe(ctx, req.(*DescribeRequest))
	})
}

// Service serves a local Environment over gRPC.
type Service struct {
	env  Environment
	spec Spec
}

// NewService wraps env.
func NewService(env Environment, spec Spec) *Service {
	return &Service{env: env, spec: spec}
}

// Reset implements Server.
func (s *Service) Reset(ctx context.Context, req *ResetRequest) (*ResetResponse, error) {
	if seeder, ok := s.env.(Seeder); ok && req.Seed != 0 {
		seeder.Seed(req.Seed)
	}
	obs, err := s.env.Reset(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &ResetResponse{Observations: obs}, nil
}

// Step implements Server.
func (s *Service) Step(ctx context.Context, req *StepRequest) (*StepResult, error) {
	if len(req.Actions) != len(s.spec.Slots) {
		return nil, status.Errorf(codes.InvalidArgument, "expected %d actions, got %d", len(s.spec.Slots), len(req.Actions))
	}
	res, err := s.env.Step(ctx, req.Actions)
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return &res, nil
}

// Describe implements Server.
func (s *Service) Describe(context.Context, *DescribeRequest) (*Spec, error) {
	spec := s.spec
	return &spec, nil
}

// NewGRPCServer builds a server exposing env together with the standard
// health and reflection services.
func NewGRPCServer(env Environment, spec Spec, logger zerolog.Logger) *grpc.Server {
	server := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(logger)))
	RegisterServer(server, NewService(env, spec))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	reflection.Register(server)
	return server
}

// LoggingInterceptor logs each unary call at debug, or at warn when it fails.
// Protobuf requests (the health service) also log their encoded size.
func LoggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		event := logger.Debug()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		if m, ok := req.(proto.Message); ok {
			event = event.Int("request_bytes", proto.Size(m))
		}
		event.
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("elapsed", time.Since(start)).
			Msg("gRPC request")
		return resp, err
	}
}

// Client is an Environment backed by a remote gRPC service.
type Client struct {
	conn *grpc.ClientConn
	seed func() uint64
}

var _ Environment = (*Client)(nil)

// Dial connects to an environment service at addr.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to environment at %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{
		conn: conn,
		seed: func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// CheckHealth asks the standard health service whether the environment is serving.
func (c *Client) CheckHealth(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("environment not serving: %s", resp.GetStatus())
	}
	return nil
}

// Describe returns the remote layout.
func (c *Client) Describe(ctx context.Context) (Spec, error) {
	var spec Spec
	if err := c.conn.Invoke(ctx, describeMethod, &DescribeRequest{}, &spec, grpc.CallContentSubtype(CodecName)); err != nil {
		return Spec{}, fmt.Errorf("describe rpc: %w", err)
	}
	return spec, nil
}

// Reset implements Environment.
func (c *Client) Reset(ctx context.Context) ([][]float64, error) {
	var resp ResetResponse
	if err := c.conn.Invoke(ctx, resetMethod, &ResetRequest{Seed: c.seed()}, &resp, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, fmt.Errorf("reset rpc: %w", err)
	}
	return resp.Observations, nil
}

// Step implements Environment.
func (c *Client) Step(ctx context.Context, actions []int) (StepResult, error) {
	var resp StepResult
	if err := c.conn.Invoke(ctx, stepMethod, &StepRequest{Actions: actions}, &resp, grpc.CallContentSubtype(CodecName)); err != nil {
		return StepResult{}, fmt.Errorf("step rpc: %w", err)
	}
	return resp, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
