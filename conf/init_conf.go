package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// RateLimitConf 分类频控覆盖
type RateLimitConf struct {
	Ceiling int
	Period  time.Duration
}

var (
	Net  string = ""
	Port string = ""

	LogLevel string = ""

	RdsDsn          string = ""
	RdsMaxOpenConns int    = 0
	RdsMaxIdleConns int    = 0

	// API Key for authentication
	APIKey = ""
	// 设备注册签名有效期
	SignatureMaxAge time.Duration = 0

	// Store Configuration
	StoreDriver     string = ""
	StorePebblePath string = ""

	// Gateway Configuration
	GatewayEndpoint       string        = ""
	GatewayAccessToken    string        = ""
	GatewayTimeout        time.Duration = 0
	GatewayBatchSize      int           = 0
	GatewayMaxConcurrency int           = 0
	GatewayGzipRequests   bool          = false

	// Redis Configuration
	RedisAddr     string        = ""
	RedisPassword string        = ""
	RedisDB       int           = 0
	RedisPrefix   string        = ""
	RedisLockTTL  time.Duration = 0
	RedisLockWait time.Duration = 0

	// Socket Client Configuration
	SocketServerURL         string = ""
	SocketAuthKey           string = ""
	SocketPath              string = ""
	SocketTimeout           int    = 0
	SocketHeartbeatInterval int    = 0

	// Pub/Sub Configuration
	PubSubProjectID       string        = ""
	PubSubSubscription    string        = ""
	PubSubCredentialsJSON string        = ""
	PubSubMaxOutstanding  int           = 0
	PubSubHandleTimeout   time.Duration = 0

	// Push Center Configuration
	FanoutConcurrency   int           = 0
	EventTimeout        time.Duration = 0
	LedgerRetention     time.Duration = 0
	MaintenanceInterval time.Duration = 0

	// Policy overrides
	PolicyDedupWindows map[string]time.Duration = nil
	PolicyRateLimits   map[string]RateLimitConf = nil
)

func InitConfig(configPath string) {
	if configPath == "" {
		configPath = GetYaml()
	}
	// .env 不存在时忽略
	_ = godotenv.Load()

	fmt.Printf("configPath:%s\n", configPath)
	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix("PUSH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("Fatal error config file: %s \n", err))
	}

	Net = viper.GetString("net")
	Port = viper.GetString("port")
	LogLevel = viper.GetString("log_level")
	SetLogLevel(LogLevel)

	RdsDsn = viper.GetString("rds.dsn")
	RdsMaxOpenConns = viper.GetInt("rds.max_open_conns")
	RdsMaxIdleConns = viper.GetInt("rds.max_idle_conns")

	// 读取 API Key 配置
	APIKey = viper.GetString("api_key")
	SignatureMaxAge = viper.GetDuration("signature_max_age")

	// 读取存储配置
	StoreDriver = viper.GetString("store.driver")
	StorePebblePath = viper.GetString("store.pebble.db_path")

	// 读取推送网关配置
	GatewayEndpoint = viper.GetString("gateway.endpoint")
	GatewayAccessToken = viper.GetString("gateway.access_token")
	GatewayTimeout = viper.GetDuration("gateway.timeout")
	GatewayBatchSize = viper.GetInt("gateway.batch_size")
	GatewayMaxConcurrency = viper.GetInt("gateway.max_concurrency")
	GatewayGzipRequests = viper.GetBool("gateway.gzip_requests")

	// 读取 redis 配置
	RedisAddr = viper.GetString("redis.addr")
	RedisPassword = viper.GetString("redis.password")
	RedisDB = viper.GetInt("redis.db")
	RedisPrefix = viper.GetString("redis.prefix")
	RedisLockTTL = viper.GetDuration("redis.lock_ttl")
	RedisLockWait = viper.GetDuration("redis.lock_wait")

	// 读取 Socket 客户端配置
	SocketServerURL = viper.GetString("socket_client.server_url")
	SocketAuthKey = viper.GetString("socket_client.auth_key")
	SocketPath = viper.GetString("socket_client.path")
	SocketTimeout = viper.GetInt("socket_client.timeout")
	SocketHeartbeatInterval = viper.GetInt("socket_client.heartbeat_interval")

	// 读取 Pub/Sub 配置
	PubSubProjectID = viper.GetString("pubsub.project_id")
	PubSubSubscription = viper.GetString("pubsub.subscription")
	PubSubCredentialsJSON = viper.GetString("pubsub.credentials_json")
	PubSubMaxOutstanding = viper.GetInt("pubsub.max_outstanding")
	PubSubHandleTimeout = viper.GetDuration("pubsub.handle_timeout")

	// 读取推送中心配置
	FanoutConcurrency = viper.GetInt("push_center.fanout_concurrency")
	EventTimeout = viper.GetDuration("push_center.event_timeout")
	LedgerRetention = viper.GetDuration("push_center.ledger_retention")
	MaintenanceInterval = viper.GetDuration("push_center.maintenance_interval")

	PolicyDedupWindows, PolicyRateLimits = readPolicy(viper.GetViper())
}

// readPolicy 读取 policy.dedup_windows 与 policy.rate_limits
func readPolicy(v *viper.Viper) (map[string]time.Duration, map[string]RateLimitConf) {
	windows := make(map[string]time.Duration)
	for name := range v.GetStringMap("policy.dedup_windows") {
		windows[name] = v.GetDuration("policy.dedup_windows." + name)
	}
	limits := make(map[string]RateLimitConf)
	for cat := range v.GetStringMap("policy.rate_limits") {
		prefix := "policy.rate_limits." + cat + "."
		limits[cat] = RateLimitConf{
			Ceiling: v.GetInt(prefix + "ceiling"),
			Period:  v.GetDuration(prefix + "period"),
		}
	}
	return windows, limits
}
