package controller

import (
	"fmt"
	"net/http"
	"time"

	"helper-push-service/conf"
	"helper-push-service/controller/auth"
	_ "helper-push-service/docs" // 导入生成的 swagger 文档
	pushcenter "helper-push-service/service/push_center"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

var pushCenter *pushcenter.PushCenter

// NewRouter 注册全部路由
func NewRouter(pc *pushcenter.PushCenter) *gin.Engine {
	pushCenter = pc

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(Cors())
	router.Use(Logger())

	// Swagger 文档路由
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", Health)

	v1 := router.Group("/v1")
	{
		pushGroup := v1.Group("/push")
		{
			pushGroup.POST("/register_device", auth.AuthSignMiddleware(), RegisterDevice)
			pushGroup.POST("/heartbeat", auth.AuthSignMiddleware(), Heartbeat)
			pushGroup.POST("/deactivate_device", auth.AuthSignMiddleware(), DeactivateDevice)
			pushGroup.POST("/set_quiet_hours", auth.AuthSignMiddleware(), SetQuietHours)
			// 返回的令牌可直接收到推送内容，仅限服务间查询
			pushGroup.GET("/get_user_devices", auth.AuthAPIKeyMiddleware(), GetUserDevices)
			pushGroup.GET("/get_quiet_hours", auth.AuthAPIKeyMiddleware(), GetQuietHours)
		}

		// 服务间接口，API Key 鉴权
		internal := v1.Group("", auth.AuthAPIKeyMiddleware())
		{
			internal.POST("/events/dispatch", DispatchEvent)
			internal.GET("/catalog", GetCatalog)
			internal.GET("/stats", GetStats)
			internal.GET("/admin/collections", ListCollections)
			internal.POST("/admin/clear_collection", ClearCollection)
		}
	}
	return router
}

// Run 启动 HTTP 服务，阻塞直到服务退出
func Run(pc *pushcenter.PushCenter) error {
	router := NewRouter(pc)
	return router.Run(fmt.Sprintf("0.0.0.0:%s", conf.Port))
}

func Cors() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AddAllowMethods("OPTIONS")
	config.AddAllowHeaders("AccessToken", "X-CSRF-Token", "Authorization",
		auth.HeaderAPIKey, auth.HeaderSignature, auth.HeaderPublicKey, auth.HeaderTimestamp)
	return cors.New(config)
}

func Logger() gin.HandlerFunc {
	logger := conf.GetLogger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"latency": time.Since(start).String(),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("⚠️ 请求处理异常")
			return
		}
		entry.Debug("📨 请求完成")
	}
}
