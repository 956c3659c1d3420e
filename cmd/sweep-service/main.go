package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SmartParkGate/SmartParkGate/internal/common/config"
	"github.com/SmartParkGate/SmartParkGate/internal/common/db"
	"github.com/SmartParkGate/SmartParkGate/internal/common/logger"
	"github.com/SmartParkGate/SmartParkGate/internal/sweep"
	"github.com/SmartParkGate/SmartParkGate/internal/tariff"
	"github.com/SmartParkGate/SmartParkGate/internal/vehicle"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "configs/sweep-service.json", "配置文件路径")
)

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 场地时区
	loc, err := time.LoadLocation(cfg.Facility.Timezone)
	if err != nil {
		log.Fatalf("failed to load facility timezone %q: %v", cfg.Facility.Timezone, err)
	}

	// 初始化数据库（表结构归 gate-service 迁移，这里只读）
	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}

	tariffRepo := tariff.NewRepo(gormDB)
	// 费率/上限没播种说明部署配置有问题，直接拒绝启动
	if _, err := tariffRepo.Ceiling(context.Background()); err != nil {
		log.Fatalf("cost ceiling unavailable, refusing to start: %v", err)
	}

	vehicleRepo := vehicle.NewRepo(gormDB, tariffRepo)
	sweeper := sweep.New(
		gormDB,
		vehicleRepo,
		tariffRepo,
		time.Duration(cfg.Sweep.IntervalSeconds)*time.Second,
		loc,
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 巡检循环 + 健康检查端口并行跑，任一退出则整体退出
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	healthSrv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/healthz" {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}),
	}
	g.Go(func() error {
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return healthSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("sweep-service exited with error: %v", err)
	}
	log.Info("sweep-service stopped")
}
