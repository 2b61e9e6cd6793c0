// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg-gemini-go/internal/config"
	"tg-gemini-go/internal/handler"
	"tg-gemini-go/internal/middleware"
	"tg-gemini-go/internal/repository"
	"tg-gemini-go/internal/service"
	"tg-gemini-go/pkg/database"
	"tg-gemini-go/pkg/gemini"
	"tg-gemini-go/pkg/googlesearch"
	"tg-gemini-go/pkg/log"
	"tg-gemini-go/pkg/telegram"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 选择历史存储后端：Redis 优先，失败降级到本地 SQLite，再到内存。
	// 后端在启动时一次性确定并注入，运行期间不做特性探测切换。
	historyRepo := buildHistoryRepository(cfg.History)

	// 4. 初始化外部服务客户端
	tgClient := telegram.NewClient(cfg.Telegram)
	geminiClient := gemini.NewClient(cfg.Gemini)
	// 判定调用使用不带系统提示的独立客户端，避免系统人设影响 YES/NO 分类
	decisionCfg := cfg.Gemini
	decisionCfg.Prompt.System = ""
	decisionClient := gemini.NewClient(decisionCfg)
	searchClient := googlesearch.NewClient(cfg.Search.APIKey, cfg.Search.CSEID,
		time.Duration(cfg.Search.TimeoutSeconds)*time.Second)

	// 5. 初始化 Service (依赖注入)
	limiter := service.NewLimiter(cfg.Reply.MaxConcurrent)
	searchService := service.NewSearchService(cfg.Search, searchClient, decisionClient, limiter)
	replyService := service.NewReplyService(cfg.Reply, geminiClient, limiter, cfg.History.MaxTurns)
	chatService := service.NewChatService(searchService, replyService, historyRepo, tgClient,
		cfg.Telegram, cfg.Gemini.Prompt)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	r.GET("/healthz", handler.Health)
	webhookHandler := handler.NewWebhookHandler(chatService, tgClient)
	r.POST(cfg.Telegram.WebhookPath,
		middleware.WebhookSecret(cfg.Telegram.WebhookSecret), webhookHandler.Handle)

	// 8. 按运行模式接入 Telegram：webhook 注册或长轮询
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch cfg.Telegram.Mode {
	case "poll":
		if err := tgClient.DeleteWebhook(rootCtx); err != nil {
			log.Warnf("注销 webhook 失败: %v", err)
		}
		go pollUpdates(rootCtx, tgClient, chatService, cfg.Telegram.PollTimeout)
		log.Info("已启动长轮询模式")
	default:
		if err := tgClient.SetWebhook(rootCtx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			log.Fatal("注册 webhook 失败", err)
		}
		log.Infof("Webhook 已注册: %s", cfg.Telegram.WebhookURL)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")
	cancel()

	// 设置一个5秒的超时上下文
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if cfg.Telegram.Mode != "poll" {
		if err := tgClient.DeleteWebhook(ctx); err != nil {
			log.Warnf("注销 webhook 失败: %v", err)
		}
	}

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}

// buildHistoryRepository 按配置挑选一个可用的历史存储后端。
func buildHistoryRepository(cfg config.HistoryConfig) repository.HistoryRepository {
	ttl := time.Duration(cfg.TTLDays) * 24 * time.Hour

	if cfg.Redis.Addr != "" {
		if err := database.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err == nil {
			return repository.NewRedisHistoryRepository(database.RDB, cfg.MaxTurns, ttl)
		} else {
			log.Warnf("Redis 不可用，降级到本地 SQLite: %v", err)
		}
	}

	if cfg.SQLitePath != "" {
		db, err := database.InitSQLite(cfg.SQLitePath)
		if err == nil {
			repo, rerr := repository.NewSQLiteHistoryRepository(db, cfg.MaxTurns)
			if rerr == nil {
				log.Infof("历史存储使用本地 SQLite: %s", cfg.SQLitePath)
				return repo
			}
			log.Warnf("初始化 SQLite 历史存储失败: %v", rerr)
		} else {
			log.Warnf("打开 SQLite 失败: %v", err)
		}
	}

	log.Warnf("所有持久化后端不可用，历史仅保存在内存中")
	return repository.NewMemoryHistoryRepository(cfg.MaxTurns)
}

// pollUpdates 以长轮询驱动消息处理，用于没有公网地址的本地运行。
func pollUpdates(ctx context.Context, tgClient *telegram.Client, chatService service.ChatService, timeout int) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := tgClient.GetUpdates(ctx, offset, timeout)
		if err != nil {
			log.Warnf("拉取更新失败: %v", err)
			time.Sleep(3 * time.Second)
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			msg := handler.NormalizeMessage(tgClient, u.Message)
			go chatService.HandleMessage(context.Background(), msg)
		}
	}
}
