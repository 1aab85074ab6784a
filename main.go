package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"lightcycle/server"
)

// 光轮对战服务端入口：读取配置、初始化日志、服务一局接一局直到收到退出信号
func main() {
	cfg, err := server.LoadConfig(os.Args[1:], ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if err := server.InitLogger(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer server.SyncLogger()

	banner(cfg)

	// 优雅退出（Ctrl+C）：通知所有玩家后再关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.NewServer(cfg, server.Log).Run(ctx); err != nil {
		server.Log.Errorw("server stopped", "error", err)
		server.SyncLogger()
		os.Exit(1)
	}
}

func banner(cfg server.Config) {
	title := color.New(color.FgCyan, color.Bold)
	info := color.New(color.FgWhite)
	title.Println("asciitron :: light cycle server")
	info.Printf("Serving Tron at %s (TCP)\n", cfg.Addr)
	if cfg.WSAddr != "" {
		info.Printf("WebSocket transport at %s/ws\n", cfg.WSAddr)
	}
	if cfg.AdminAddr != "" {
		info.Printf("Admin and metrics at %s\n", cfg.AdminAddr)
	}
	color.New(color.FgYellow).Printf("Waiting for %d player(s) now.\n", cfg.Players)
}
