package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commandes/internal/health"
)

const readHeaderTimeout = 5 * time.Second

// server — HTTP-сервер с уже открытым listener.
type server struct {
	name     string
	srv      *http.Server
	listener net.Listener
}

// listenHTTP открывает listener заранее, чтобы ошибка адреса вернулась из Run.
func listenHTTP(name, addr string, handler http.Handler) (*server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &server{
		name:     name,
		srv:      &http.Server{Handler: handler, ReadHeaderTimeout: readHeaderTimeout},
		listener: lis,
	}, nil
}

// Addr возвращает фактический адрес listener.
func (s *server) Addr() string {
	return s.listener.Addr().String()
}

// serve блокируется до остановки сервера; ErrServerClosed не считается ошибкой.
func (s *server) serve(logger *log.Entry) error {
	logger.WithField("addr", s.Addr()).Infof("%s server listening", s.name)
	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// shutdown аккуратно останавливает сервер в пределах timeout.
func (s *server) shutdown(timeout time.Duration, logger *log.Entry) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warnf("%s shutdown with error", s.name)
	}
}

// opsHandler отдаёт /metrics и health-пробы.
func opsHandler(gatherer prometheus.Gatherer, healthHandler *health.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	healthHandler.Register(mux)
	return mux
}
