package message

import (
	"context"
	"errors"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// every connection to :memory: is its own database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := NewRepo(db).AutoMigrate(); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func countRecords(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&Record{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// fakeGen answers every prompt with reply/err and remembers the prompts.
type fakeGen struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (g *fakeGen) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *fakeGen) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

var errStoreDown = errors.New("store unavailable")

// flakyStore wraps a Repo and fails the selected operations.
type flakyStore struct {
	*Repo
	failCreate     bool
	failProcessing bool
	failComplete   bool
	failFail       bool
}

func (s *flakyStore) Create(ctx context.Context, rec *Record) error {
	if s.failCreate {
		return errStoreDown
	}
	return s.Repo.Create(ctx, rec)
}

func (s *flakyStore) MarkProcessing(ctx context.Context, id string) error {
	if s.failProcessing {
		return errStoreDown
	}
	return s.Repo.MarkProcessing(ctx, id)
}

func (s *flakyStore) Complete(ctx context.Context, id, response string) error {
	if s.failComplete {
		return errStoreDown
	}
	return s.Repo.Complete(ctx, id, response)
}

func (s *flakyStore) Fail(ctx context.Context, id, msg string) error {
	if s.failFail {
		return errStoreDown
	}
	return s.Repo.Fail(ctx, id, msg)
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *recordingPublisher) PublishMessageCreated(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}
