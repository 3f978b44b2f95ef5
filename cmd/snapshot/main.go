package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"anchor-snapshot-sol/internal/config"
	"anchor-snapshot-sol/internal/metrics"
	"anchor-snapshot-sol/internal/pkg/logger"
	"anchor-snapshot-sol/internal/svc"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"
)

var configFile = flag.String("f", "etc/snapshot.yaml", "the config file")

func main() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
			os.Exit(2)
		}
	}()

	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "snapshot failed: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run() error {
	c, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if err := logger.InitLogger(c.LogConf.ToLogOption()); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	serviceContext, err := svc.NewServiceContext(c, nil)
	if err != nil {
		return err
	}
	defer serviceContext.Close()

	if c.MetricsAddr != "" {
		srv := &http.Server{Addr: c.MetricsAddr, Handler: metricsMux()}
		threading.GoSafe(func() {
			logger.Infof("[main] metrics listening on %s", c.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("[main] metrics server: %v", err)
			}
		})
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	// 收到退出信号时取消拉取与发送
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("[main] starting snapshot, idl=%s, program=%s, addresses=%d",
		c.IdlPath, c.ProgramID, len(c.Addresses))
	_, err = serviceContext.Run(ctx)
	return err
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
