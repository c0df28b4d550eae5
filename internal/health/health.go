// ============================================================================
// Roadcrew Health - gRPC 健康檢查服務
// ============================================================================
//
// Package: internal/health
// 文件: health.go
// 功能: 以標準 grpc.health.v1 服務回報 tick 循環是否在執行
//
// 服務名稱:
//   ""                 整體狀態
//   roadcrew.Simulation 模擬循環
//
// 查詢示例:
//   roadcrew status --addr localhost:9091
//   grpc_health_probe -addr=localhost:9091 -service=roadcrew.Simulation
//
// ============================================================================

package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// ServiceName is the health service name of the simulation loop.
const ServiceName = "roadcrew.Simulation"

// DefaultInterval is how often the prober is sampled.
const DefaultInterval = 250 * time.Millisecond

var log = slog.With("component", "health")

// Prober 回報模擬循環是否在執行
type Prober interface {
	Running() bool
}

// Server 健康檢查伺服器
type Server struct {
	grpc     *grpc.Server
	health   *grpchealth.Server
	prober   Prober
	interval time.Duration
}

// NewServer 建立伺服器；interval <= 0 時使用 DefaultInterval
func NewServer(p Prober, interval time.Duration) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}
	gs := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs, prober: p, interval: interval}
	s.Update()
	return s
}

// Update 依 prober 設定兩個服務名稱的狀態
func (s *Server) Update() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.prober.Running() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve 在 addr 上提供服務直到 ctx 結束
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("health listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener 在既有的 listener 上提供服務直到 ctx 結束
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(lis) }()
	log.Info("Health server listening", "addr", lis.Addr().String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			return fmt.Errorf("health server: %w", err)
		case <-ticker.C:
			s.Update()
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpc.GracefulStop()
			if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("health server: %w", err)
			}
			log.Info("Health server stopped")
			return nil
		}
	}
}

// ============================================================================
// 客戶端
// ============================================================================

// Check 查詢 addr 上指定服務的健康狀態
func Check(ctx context.Context, addr, service string) (*healthpb.HealthCheckResponse, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return nil, fmt.Errorf("health check %s: %w", addr, err)
	}
	return resp, nil
}

// Format 以 protojson 輸出回應
func Format(resp *healthpb.HealthCheckResponse) (string, error) {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("format health response: %w", err)
	}
	return string(b), nil
}
