package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Addr string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// EngineConfig 引擎相關參數：hold 的存活時間、回收器間隔、購票逾時
type EngineConfig struct {
	HoldTTL         time.Duration // 未 commit 的 hold 多久後自動釋放
	ReapInterval    time.Duration // 背景回收器的執行間隔
	PurchaseTimeout time.Duration // 單次購票請求的最長時間
	QueueBufferSize int
	WorkerCount     int
}

var AppConfig *Config

func LoadConfig() *Config {
	// .env 不存在也沒關係，環境變數優先
	_ = godotenv.Load()

	AppConfig = &Config{
		Server:   GetServerConfig(),
		Database: GetDatabaseConfig(),
		Redis:    GetRedisConfig(),
		Engine:   GetEngineConfig(),
	}

	return AppConfig
}

func LoadTestConfig() *Config {
	testConfig := &DatabaseConfig{
		Host:     "localhost",
		Port:     "5433", // 測試 DB 用 5433 port
		User:     "postgres",
		Password: "postgres",
		DBName:   "test_db",
		SSLMode:  "disable",
	}

	testRedisConfig := RedisConfig{
		Host:     "localhost",
		Port:     "6380", // 測試 Redis 用 6380 port
		Password: "",
		DB:       1,
	}

	return &Config{
		Server:   ServerConfig{Addr: ":8081"},
		Database: *testConfig,
		Redis:    testRedisConfig,
		Engine: EngineConfig{
			HoldTTL:         2 * time.Second, // 測試時讓 hold 快點過期
			ReapInterval:    500 * time.Millisecond,
			PurchaseTimeout: 5 * time.Second,
			QueueBufferSize: 64,
			WorkerCount:     1,
		},
	}
}

func GetServerConfig() ServerConfig {
	return ServerConfig{
		Addr: getEnv("SERVER_ADDR", ":8080"),
	}
}

func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		DBName:   getEnv("DB_NAME", "postgres"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}
}

func GetRedisConfig() RedisConfig {
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		panic(err)
	}

	return RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       db,
	}
}

func GetEngineConfig() EngineConfig {
	return EngineConfig{
		HoldTTL:         getDurationEnv("HOLD_TTL", 5*time.Minute),
		ReapInterval:    getDurationEnv("REAP_INTERVAL", 30*time.Second),
		PurchaseTimeout: getDurationEnv("PURCHASE_TIMEOUT", 10*time.Second),
		QueueBufferSize: getIntEnv("QUEUE_BUFFER_SIZE", 1024),
		WorkerCount:     getIntEnv("WORKER_COUNT", 4),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		panic(err)
	}
	return n
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(err)
	}
	return d
}
