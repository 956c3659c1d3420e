package capacity

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	// 单连接：内存库在连接间不共享，顺便把并发写串行化
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&ParkingCounter{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestTryReserveUpToCapacity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	pool := NewSlotPool(db)
	if err := pool.EnsureCounter(ctx, 2); err != nil {
		t.Fatalf("EnsureCounter: %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, err := pool.TryReserve(ctx, nil)
		if err != nil {
			t.Fatalf("TryReserve: %v", err)
		}
		if !ok {
			t.Fatalf("expected reserve %d to succeed", i+1)
		}
	}

	ok, err := pool.TryReserve(ctx, nil)
	if err != nil {
		t.Fatalf("TryReserve: %v", err)
	}
	if ok {
		t.Fatalf("expected reserve beyond capacity to fail")
	}

	c, err := pool.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if c.Reserved != 2 {
		t.Fatalf("expected reserved=2, got %d", c.Reserved)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	pool := NewSlotPool(db)
	if err := pool.EnsureCounter(ctx, 3); err != nil {
		t.Fatalf("EnsureCounter: %v", err)
	}

	if err := pool.Release(ctx, nil); err != nil {
		t.Fatalf("Release on empty: %v", err)
	}
	c, err := pool.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if c.Reserved != 0 {
		t.Fatalf("expected reserved floored at 0, got %d", c.Reserved)
	}

	if _, err := pool.TryReserve(ctx, nil); err != nil {
		t.Fatalf("TryReserve: %v", err)
	}
	if err := pool.Release(ctx, nil); err != nil {
		t.Fatalf("Release: %v", err)
	}
	c, _ = pool.Snapshot(ctx)
	if c.Reserved != 0 {
		t.Fatalf("expected round-trip back to 0, got %d", c.Reserved)
	}
}

func TestEnsureCounterSyncsCapacity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	pool := NewSlotPool(db)
	if err := pool.EnsureCounter(ctx, 10); err != nil {
		t.Fatalf("EnsureCounter: %v", err)
	}
	if err := pool.EnsureCounter(ctx, 5); err != nil {
		t.Fatalf("EnsureCounter resize: %v", err)
	}
	c, err := pool.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if c.TotalCapacity != 5 {
		t.Fatalf("expected capacity synced to 5, got %d", c.TotalCapacity)
	}
}

func TestConcurrentReserveNeverOvercommits(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const capacity = 3
	const callers = 10

	pool := NewSlotPool(db)
	if err := pool.EnsureCounter(ctx, capacity); err != nil {
		t.Fatalf("EnsureCounter: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := pool.TryReserve(ctx, nil)
			if err != nil {
				t.Errorf("TryReserve: %v", err)
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	granted := 0
	for ok := range results {
		if ok {
			granted++
		}
	}
	if granted != capacity {
		t.Fatalf("expected exactly %d grants, got %d", capacity, granted)
	}

	c, err := pool.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if c.Reserved != capacity {
		t.Fatalf("expected reserved=%d, got %d", capacity, c.Reserved)
	}
}
