// =============================================================================
// 文件: internal/metrics/server.go
// 描述: 健康检查和 Metrics 服务 - Prometheus 标准格式
// =============================================================================
package metrics

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Server 指标服务器
type Server struct {
	listen      string
	metricsPath string
	healthPath  string

	httpServer *http.Server
	listener   net.Listener
	registry   *prometheus.Registry
	logger     *zap.SugaredLogger
	startTime  time.Time

	healthy     atomic.Bool
	healthCheck func() HealthStatus

	mu sync.RWMutex
}

// HealthStatus 健康状态
type HealthStatus struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
	Running   int           `json:"running"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
}

// NewServer 创建指标服务器
func NewServer(listen, metricsPath, healthPath string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 自定义 registry, 不使用全局默认
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		listen:      listen,
		metricsPath: metricsPath,
		healthPath:  healthPath,
		registry:    registry,
		logger:      logger.Sugar().Named("metrics"),
		startTime:   time.Now(),
	}
	s.healthy.Store(true)
	return s
}

// Register 注册 Prometheus 收集器
func (s *Server) Register(c prometheus.Collector) error {
	return s.registry.Register(c)
}

// MustRegister 注册收集器 (失败时 panic)
func (s *Server) MustRegister(c prometheus.Collector) {
	s.registry.MustRegister(c)
}

// SetHealthCheck 设置健康检查函数
func (s *Server) SetHealthCheck(fn func() HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthCheck = fn
}

// SetHealthy 设置存活状态
func (s *Server) SetHealthy(healthy bool) {
	s.healthy.Store(healthy)
}

// Handler 构建 HTTP 路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(s.healthPath, s.handleHealth)
	mux.HandleFunc(s.healthPath+"/live", s.handleLiveness)

	mux.Handle(s.metricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          s.registry,
	}))

	return mux
}

// Start 监听并启动服务器, ctx 结束时自动关闭. 监听失败直接返回错误
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return errors.Wrapf(err, "监听 %s 失败", s.listen)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("服务器错误: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Infof("指标服务已启动: %s%s", ln.Addr(), s.metricsPath)
	return nil
}

// Addr 实际监听地址, 未启动时为空
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	healthCheck := s.healthCheck
	s.mu.RUnlock()

	var status HealthStatus
	if healthCheck != nil {
		status = healthCheck()
	} else {
		status = HealthStatus{Status: "healthy"}
	}
	status.Timestamp = time.Now()
	status.Uptime = time.Since(s.startTime)

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.healthy.Load() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("NOT OK"))
}

// Stop 停止服务器
func (s *Server) Stop() {
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// Registry 获取 registry
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}
