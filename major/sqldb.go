package major

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"helper-push-service/conf"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	db    *gorm.DB
	sqlDB *sql.DB
)

// InitSqlConfig 连接 MySQL，连接池参数来自配置
func InitSqlConfig() (*gorm.DB, error) {
	if db != nil {
		return db, nil
	}
	if conf.RdsDsn == "" {
		return nil, fmt.Errorf("rds.dsn is empty")
	}

	gdb, err := gorm.Open(mysql.Open(conf.RdsDsn), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:      logger.Error,
				SlowThreshold: time.Second,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("DB init error %w", err)
	}
	sqlDB, err = gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlDB error %w", err)
	}
	sqlDB.SetMaxOpenConns(conf.RdsMaxOpenConns)
	sqlDB.SetMaxIdleConns(conf.RdsMaxIdleConns)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := gdb.Use(otelgorm.NewPlugin()); err != nil {
		conf.GetLogger().WithError(err).Warn("⚠️ db connected but failed to install otelgorm plugin")
	}
	db = gdb
	return db, nil
}

func GetSqlDB() *gorm.DB {
	return db
}
