package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"robotarena/server"
	"robotarena/sim"
)

// RobotArena 入口：解析端口 → 加载场景 → 启动仿真帧循环与遥控中继
// 用法：robotarena [flags] [port]
func main() {
	var (
		portFlag  string
		transport string
		httpAddr  string
		scenePath string
		logPath   string
		journal   string
		tick      time.Duration
	)
	flag.StringVar(&portFlag, "port", "8080", "relay listen port; a positional argument takes precedence")
	flag.StringVar(&transport, "transport", "ws", "controller transport: ws or tcp")
	flag.StringVar(&httpAddr, "http", ":8081", "viewer/admin HTTP address when transport is tcp; empty disables it")
	flag.StringVar(&scenePath, "scene", "", "scene JSON file; built-in scene when empty")
	flag.StringVar(&logPath, "log", "robotarena.log", "log file path")
	flag.StringVar(&journal, "journal", "", "sqlite event journal path; disabled when empty")
	flag.DurationVar(&tick, "tick", server.DefaultTickInterval, "frame interval")
	flag.Parse()

	// 使用第三方 zap 日志库写入日志文件（带滚动），同时输出到 stderr
	if err := server.InitLogger(logPath); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	if flag.NArg() > 0 {
		portFlag = flag.Arg(0)
	}
	// 端口非法时在创建任何仿真状态之前退出
	port, err := server.ParsePort(portFlag)
	if err != nil {
		server.Log.Fatalf("config: %v", err)
	}
	if transport != "ws" && transport != "tcp" {
		server.Log.Fatalf("config: unknown transport %q", transport)
	}

	cfg := sim.DefaultConfig()
	if scenePath != "" {
		if cfg, err = sim.LoadConfig(scenePath); err != nil {
			server.Log.Fatalf("config: %v", err)
		}
	}

	var j *server.Journal
	if journal != "" {
		if j, err = server.OpenJournal(journal); err != nil {
			server.Log.Fatalf("journal: %v", err)
		}
	}

	arena, err := server.NewArena(cfg, j)
	if err != nil {
		server.Log.Fatalf("simulation: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go arena.Run(ctx, tick)

	router := server.NewRouter(arena)
	relayAddr := fmt.Sprintf(":%d", port)
	var srv *http.Server

	switch transport {
	case "ws":
		srv = &http.Server{Addr: relayAddr, Handler: router}
	case "tcp":
		ln, err := net.Listen("tcp", relayAddr)
		if err != nil {
			server.Log.Fatalf("listen: %v", err)
		}
		go func() {
			if err := server.ServeTCP(ctx, ln, arena.Relay); err != nil {
				server.Log.Errorf("tcp relay: %v", err)
				stop()
			}
		}()
		if httpAddr != "" {
			srv = &http.Server{Addr: httpAddr, Handler: router}
		}
	}

	if srv != nil {
		go func() {
			server.Log.Infof("RobotArena listening on %s (transport=%s); controller at ws://localhost%s/controller",
				srv.Addr, transport, srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				server.Log.Errorf("listen: %v", err)
				stop()
			}
		}()
	}

	// 优雅退出（Ctrl+C）
	<-ctx.Done()
	server.Log.Info("Shutting down...")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}
	if err := arena.Close(); err != nil {
		server.Log.Warnw("close", "err", err)
	}
}
