package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"helper-push-service/conf"
	"helper-push-service/controller"
	ec "helper-push-service/service/event_catalog"
	"helper-push-service/service/gateway_service"
	"helper-push-service/service/pebble_service"
	"helper-push-service/service/pubsub_service"
	pushcenter "helper-push-service/service/push_center"
	"helper-push-service/service/realtime_service"
)

// buildPushCenterConfig 由配置文件生成推送中心配置，未配置的项交给 ApplyDefaults
func buildPushCenterConfig() *pushcenter.Config {
	cfg := &pushcenter.Config{
		Store: pushcenter.StoreConfig{
			Driver: conf.StoreDriver,
		},
		Gateway: &gateway_service.Config{
			Endpoint:       conf.GatewayEndpoint,
			AccessToken:    conf.GatewayAccessToken,
			Timeout:        conf.GatewayTimeout,
			BatchSize:      conf.GatewayBatchSize,
			MaxConcurrency: conf.GatewayMaxConcurrency,
			GzipRequests:   conf.GatewayGzipRequests,
		},
		Redis: pushcenter.RedisConfig{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
			Prefix:   conf.RedisPrefix,
			LockTTL:  conf.RedisLockTTL,
			LockWait: conf.RedisLockWait,
		},
		Policy: pushcenter.PolicyConfig{
			DedupWindows: conf.PolicyDedupWindows,
			RateLimits:   make(map[string]ec.RateLimit, len(conf.PolicyRateLimits)),
		},
		FanoutConcurrency:   conf.FanoutConcurrency,
		EventTimeout:        conf.EventTimeout,
		LedgerRetention:     conf.LedgerRetention,
		MaintenanceInterval: conf.MaintenanceInterval,
	}
	if conf.StorePebblePath != "" {
		cfg.Store.Pebble = &pebble_service.Config{DBPath: conf.StorePebblePath}
	}
	for cat, limit := range conf.PolicyRateLimits {
		cfg.Policy.RateLimits[cat] = ec.RateLimit{Ceiling: limit.Ceiling, Period: limit.Period}
	}

	if conf.SocketServerURL != "" {
		cfg.Socket = &realtime_service.Config{
			ServerURL:         conf.SocketServerURL,
			AuthKey:           conf.SocketAuthKey,
			Path:              conf.SocketPath,
			Timeout:           conf.SocketTimeout,
			HeartbeatInterval: conf.SocketHeartbeatInterval,
		}
	}
	if conf.PubSubSubscription != "" {
		cfg.PubSub = &pubsub_service.Config{
			ProjectID:       conf.PubSubProjectID,
			Subscription:    conf.PubSubSubscription,
			CredentialsJSON: conf.PubSubCredentialsJSON,
			MaxOutstanding:  conf.PubSubMaxOutstanding,
			HandleTimeout:   conf.PubSubHandleTimeout,
		}
	}
	return cfg
}

// Package main
// @title 助手推送服务 API
// @version 1.0
// @description 领域事件推送调度与设备令牌管理
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-KEY
func main() {
	var env string
	flag.StringVar(&env, "env", "example", "env config: example, testnet, mainnet, local")
	flag.Parse()

	if e, ok := conf.ParseEnvironment(env); ok {
		conf.SystemEnvironmentEnum = e
	} else {
		fmt.Printf("unknown env %q, using example\n", env)
	}

	conf.InitConfig("")
	logger := conf.GetLogger()
	fmt.Printf("run helper-push-service, env: %s\n", env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pushCenter := pushcenter.NewPushCenter(buildPushCenterConfig())
	if err := pushCenter.Initialize(ctx); err != nil {
		logger.WithError(err).Fatal("❌ 初始化推送中心失败")
	}
	if err := pushCenter.Run(ctx); err != nil {
		logger.WithError(err).Fatal("❌ 启动推送中心失败")
	}

	go func() {
		if err := controller.Run(pushCenter); err != nil {
			logger.WithError(err).Error("❌ HTTP 服务退出")
			stop()
		}
	}()

	<-ctx.Done()
	if err := pushCenter.Stop(); err != nil {
		logger.WithError(err).Warn("⚠️ 关闭推送中心时出现错误")
	}
}
