package sql_service

import (
	"strings"
	"testing"
	"time"

	"helper-push-service/models"
	"helper-push-service/service/dispatch_service"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var _ dispatch_service.Store = (*SqlStore)(nil)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "push:push@tcp(127.0.0.1:3306)/push?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return db
}

func upsertClause(sql string) string {
	i := strings.Index(sql, "ON DUPLICATE KEY UPDATE")
	if i < 0 {
		return ""
	}
	return sql[i:]
}

func TestRecordDeliveryIsSingleUpsert(t *testing.T) {
	db := dryRunDB(t)
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return recordQuery(tx, &models.DeliveryRecord{DedupKey: "k", EventType: "job_started", SentAt: at, SuccessCount: 2, FailureCount: 1})
	})
	t.Logf("📝 %s", sql)

	upd := upsertClause(sql)
	if upd == "" {
		t.Fatalf("no upsert clause: %s", sql)
	}
	for _, want := range []string{"success_count + 2", "failure_count + 1", "`sent_at`="} {
		if !strings.Contains(upd, want) {
			t.Errorf("upsert missing %q: %s", want, upd)
		}
	}
}

func TestFailedDeliveryKeepsSentAt(t *testing.T) {
	db := dryRunDB(t)
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return recordQuery(tx, &models.DeliveryRecord{DedupKey: "k", SentAt: time.Now(), FailureCount: 3})
	})
	upd := upsertClause(sql)
	if strings.Contains(upd, "`sent_at`=") {
		t.Errorf("failed attempt refreshes sent_at: %s", upd)
	}
	if !strings.Contains(upd, "failure_count + 3") {
		t.Errorf("failure count not accumulated: %s", upd)
	}
}

func TestRegisterDeviceReactivates(t *testing.T) {
	db := dryRunDB(t)
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return registerQuery(tx, &models.DeviceTarget{UserID: "U2", Token: "tok", Platform: models.PlatformIOS}, time.Now())
	})
	upd := upsertClause(sql)
	for _, want := range []string{"`is_active`=true", "`user_id`='U2'", "`platform`='ios'"} {
		if !strings.Contains(upd, want) {
			t.Errorf("upsert missing %q: %s", want, upd)
		}
	}
}

func TestSetQuietHoursUpsert(t *testing.T) {
	db := dryRunDB(t)
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return quietHoursQuery(tx, &models.QuietHours{UserID: "U1", StartMinute: 1320, EndMinute: 420, Enabled: true})
	})
	if !strings.Contains(sql, "user_quiet_hours") || upsertClause(sql) == "" {
		t.Errorf("sql = %s", sql)
	}
}
