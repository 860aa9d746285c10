package app

import (
	"errors"
	"fmt"
	"net"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ClientsServiceName — имя сервиса в gRPC health v1.
const ClientsServiceName = "commandes.ClientsService"

// grpcServer — gRPC health-сервер для балансировщиков и оркестраторов.
type grpcServer struct {
	srv      *grpc.Server
	health   *grpchealth.Server
	listener net.Listener
}

func newGRPCServer(addr string, registerer prometheus.Registerer) (*grpcServer, error) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registerer.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register grpc metrics: %w", err)
		}
		if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
			grpcMetrics = existing
		}
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, healthServer)
	reflection.Register(srv)
	grpcMetrics.InitializeMetrics(srv)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &grpcServer{srv: srv, health: healthServer, listener: lis}, nil
}

// setServing переключает статус для общего и именованного сервиса.
func (g *grpcServer) setServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ClientsServiceName, status)
}
