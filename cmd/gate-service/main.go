package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/SmartParkGate/SmartParkGate/internal/capacity"
	"github.com/SmartParkGate/SmartParkGate/internal/common/config"
	"github.com/SmartParkGate/SmartParkGate/internal/common/db"
	"github.com/SmartParkGate/SmartParkGate/internal/common/logger"
	"github.com/SmartParkGate/SmartParkGate/internal/common/server"
	"github.com/SmartParkGate/SmartParkGate/internal/common/tracing"
	"github.com/SmartParkGate/SmartParkGate/internal/gate"
	"github.com/SmartParkGate/SmartParkGate/internal/platereader"
	"github.com/SmartParkGate/SmartParkGate/internal/session"
	"github.com/SmartParkGate/SmartParkGate/internal/tariff"
	"github.com/SmartParkGate/SmartParkGate/internal/vehicle"
)

var (
	configPath  = flag.String("config", "configs/gate-service.json", "配置文件路径")
	consulKVKey = flag.String("consul-kv", "", "从 Consul KV 读取配置的 key（优先于本地文件）")
)

func main() {
	flag.Parse()

	// 加载配置（Consul KV 优先，未指定则读本地文件）
	var cfg *config.Config
	var err error
	if *consulKVKey != "" {
		base := config.GetConfig()
		cfg, err = config.LoadConfigFromConsulKV(base.Consul.Host, base.Consul.Port, *consulKVKey)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 场地时区：计费与点位查询统一用它
	loc, err := time.LoadLocation(cfg.Facility.Timezone)
	if err != nil {
		log.Fatalf("failed to load facility timezone %q: %v", cfg.Facility.Timezone, err)
	}

	// 初始化数据库
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
	// accounts 表归外部身份服务所有，这里建表只为开发环境自足
	if err := gormDB.AutoMigrate(
		&vehicle.Vehicle{},
		&vehicle.Account{},
		&tariff.Tariff{},
		&tariff.PolicyLimit{},
		&capacity.ParkingCounter{},
		&session.ParkingSession{},
	); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	ctx := context.Background()

	// 费率表没播种就不对外服务：计费必须在启动期就可用
	tariffRepo := tariff.NewRepo(gormDB)
	if err := tariffRepo.EnsureSeeded(ctx, tariff.SeedInput{
		StandardRate:   cfg.Facility.StandardRate,
		AuthorizedRate: cfg.Facility.AuthorizedRate,
		MaxSessionCost: cfg.Facility.MaxSessionCost,
	}); err != nil {
		log.Fatalf("failed to seed tariff catalog: %v", err)
	}

	pool := capacity.NewSlotPool(gormDB)
	if err := pool.EnsureCounter(ctx, cfg.Facility.Capacity); err != nil {
		log.Fatalf("failed to init parking counter: %v", err)
	}

	vehicleRepo := vehicle.NewRepo(gormDB, tariffRepo)
	notifier := session.NewLogNotifier(log)
	svc := session.NewService(gormDB, pool, vehicleRepo, notifier, loc, log)

	// 车牌识别服务可选：没配就只支持人工车牌入场
	var reader platereader.Reader
	if cfg.PlateReader.Endpoint != "" {
		reader = platereader.NewHTTPReader(
			cfg.PlateReader.Endpoint,
			time.Duration(cfg.PlateReader.TimeoutSeconds)*time.Second,
		)
	}

	gateServer := gate.NewServer(svc, vehicleRepo, reader, cfg.Auth, log)

	// 启动统一的 HTTP 服务模板
	if err := server.RunHTTPServer(cfg, log, gateServer.Register); err != nil {
		log.Fatalf("gate-service exited with error: %v", err)
	}
}
