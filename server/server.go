package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 2 * time.Second

// Server 进程内唯一的对局服务：监听 TCP（可选 WebSocket 与管理接口），把连接交给 Game
type Server struct {
	cfg  Config
	game *Game
	log  *zap.SugaredLogger

	pumps sync.WaitGroup
}

// NewServer 根据配置创建服务
func NewServer(cfg Config, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = Log
	}
	return &Server{cfg: cfg, game: NewGame(cfg, log), log: log}
}

// Game 返回对局
func (s *Server) Game() *Game { return s.game }

// Run 监听配置中的地址并阻塞直到 ctx 结束
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上服务，ctx 结束后通知所有玩家并关闭
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Infow("serving tron", "addr", ln.Addr().String(), "players", s.cfg.Players)

	gameDone := make(chan struct{})
	go func() {
		defer close(gameDone)
		s.game.Run(ctx)
	}()

	var servers []*http.Server
	if s.cfg.WSAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", s.HandleWS)
		servers = append(servers, s.startHTTP("websocket", s.cfg.WSAddr, mux))
	}
	if s.cfg.AdminAddr != "" {
		servers = append(servers, s.startHTTP("admin", s.cfg.AdminAddr, s.AdminHandler()))
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}
		s.accept(conn)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	<-gameDone
	s.waitPumps(shutdownCtx)
	s.log.Info("server halted")
	return acceptErr
}

// accept 包装连接并在主循环中登记；主循环已退出时直接关闭
func (s *Server) accept(conn Conn) {
	sess := NewSession(conn, s.game.Tuning())
	if !s.game.Join(sess) {
		_ = conn.Close()
		return
	}
	sess.serve(s.game, &s.pumps)
}

func (s *Server) startHTTP(name, addr string, h http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		s.log.Infow("http listening", "name", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("http listen failed", "name", name, "addr", addr, "error", err)
		}
	}()
	return srv
}

// waitPumps 等待收发协程把“断开”报文写完
func (s *Server) waitPumps(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("timed out waiting for connections to drain")
	}
}
