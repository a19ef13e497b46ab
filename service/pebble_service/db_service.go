package pebble_service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"helper-push-service/models"

	"github.com/cockroachdb/pebble"
)

// CollectionInfo 集合信息
type CollectionInfo struct {
	Name  string `json:"name"`  // 集合名称
	Count int    `json:"count"` // 记录数量
}

// ListCollections 列出所有集合及其记录数量
func (ps *PebbleService) ListCollections() ([]*CollectionInfo, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	result := make([]*CollectionInfo, 0, len(allCollections))
	for _, name := range allCollections {
		count, err := ps.getCollectionCount(name)
		if err != nil {
			ps.logger.WithError(err).Warnf("⚠️ 获取集合 %s 记录数失败", name)
			count = 0
		}
		result = append(result, &CollectionInfo{Name: name, Count: count})
	}
	return result, nil
}

func (ps *PebbleService) getCollectionCount(collectionName string) (int, error) {
	db, err := ps.getCollectionDB(collectionName)
	if err != nil {
		return 0, err
	}

	iter, err := db.NewIter(nil)
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}
	return count, iter.Error()
}

// ClearCollection 清空指定集合的所有数据
func (ps *PebbleService) ClearCollection(collectionName string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, ok := ps.writeLocks[collectionName]; !ok {
		return fmt.Errorf("未知集合: %s", collectionName)
	}
	db, err := ps.getCollectionDB(collectionName)
	if err != nil {
		return fmt.Errorf("获取集合数据库失败: %w", err)
	}
	defer ps.lockCollection(collectionName)()

	n, err := deleteWhere(db, func([]byte, []byte) bool { return true })
	if err != nil {
		return err
	}
	ps.logger.Infof("🗑️ 已清空集合 %s，删除了 %d 条记录", collectionName, n)
	return nil
}

// PruneDeliveryLog 删除最后成功投递早于 before 的记录，以及从未成功且已过期的记录
// 只应使用大于最长去重窗口的保留期，否则会放行本应去重的推送
func (ps *PebbleService) PruneDeliveryLog(_ context.Context, before time.Time) (int64, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	db, err := ps.getCollectionDB(CollectionDeliveryLog)
	if err != nil {
		return 0, err
	}
	defer ps.lockCollection(CollectionDeliveryLog)()

	n, err := deleteWhere(db, func(_ []byte, value []byte) bool {
		var rec models.DeliveryRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return true
		}
		return rec.SentAt.Before(before)
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		ps.logger.Infof("🧹 已清理 %d 条过期投递记录", n)
	}
	return int64(n), nil
}

func deleteWhere(db *pebble.DB, match func(key, value []byte) bool) (int, error) {
	iter, err := db.NewIter(nil)
	if err != nil {
		return 0, fmt.Errorf("创建迭代器失败: %w", err)
	}

	var keys [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		if match(iter.Key(), iter.Value()) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			keys = append(keys, key)
		}
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return 0, fmt.Errorf("迭代器错误: %w", err)
	}
	iter.Close()

	if len(keys) == 0 {
		return 0, nil
	}
	batch := db.NewBatch()
	defer batch.Close()
	for _, key := range keys {
		if err := batch.Delete(key, nil); err != nil {
			return 0, fmt.Errorf("添加删除操作到批处理失败: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("提交批处理删除失败: %w", err)
	}
	return len(keys), nil
}
