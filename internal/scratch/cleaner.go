package scratch

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/AlexandrLebegue/thesis-llm/internal/models"
)

// VisitorRegistry is the slice of the auth service the cleaner needs.
type VisitorRegistry interface {
	ExpiredVisitors(ctx context.Context) ([]int64, error)
	CloseVisitor(ctx context.Context, visitorID int64) error
}

// Cleaner removes expired uploads and lapsed visitor sessions on a ticker.
type Cleaner struct {
	db       *sql.DB
	store    *Store
	visitors VisitorRegistry
	interval time.Duration
}

// NewCleaner builds the cleanup loop.
func NewCleaner(db *sql.DB, store *Store, visitors VisitorRegistry, interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Cleaner{db: db, store: store, visitors: visitors, interval: interval}
}

// Start runs the loop until the context is cancelled. One pass runs
// immediately on start.
func (c *Cleaner) Start(ctx context.Context) {
	go func() {
		c.sweep(ctx)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep(ctx)
			}
		}
	}()
}

func (c *Cleaner) sweep(ctx context.Context) {
	c.sweepUploads(ctx)
	c.sweepVisitors(ctx)
}

// sweepUploads deletes upload files past their TTL along with their rows.
func (c *Cleaner) sweepUploads(ctx context.Context) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, stored_path FROM uploads WHERE status = ? AND expires_at <= ?`,
		models.UploadStatusActive, time.Now().UTC(),
	)
	if err != nil {
		log.Printf("cleanup list uploads failed: %v", err)
		return
	}
	type expired struct {
		id   int64
		path string
	}
	var batch []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.id, &e.path); err != nil {
			log.Printf("cleanup scan upload failed: %v", err)
			continue
		}
		batch = append(batch, e)
	}
	rows.Close()

	for _, e := range batch {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			log.Printf("cleanup remove %s failed: %v", e.path, err)
			continue
		}
		if _, err := c.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, e.id); err != nil {
			log.Printf("cleanup delete upload row failed: %v", err)
		}
	}
	if len(batch) > 0 {
		log.Printf("cleanup removed %d expired uploads", len(batch))
	}
}

// sweepVisitors drops lapsed visitor sessions: database rows cascade away
// and the scratch subtree is deleted.
func (c *Cleaner) sweepVisitors(ctx context.Context) {
	ids, err := c.visitors.ExpiredVisitors(ctx)
	if err != nil {
		log.Printf("cleanup list visitors failed: %v", err)
		return
	}
	for _, id := range ids {
		if err := c.visitors.CloseVisitor(ctx, id); err != nil {
			log.Printf("cleanup close visitor %d failed: %v", id, err)
			continue
		}
		if err := c.store.RemoveVisitor(id); err != nil {
			log.Printf("cleanup remove visitor dir %d failed: %v", id, err)
		}
	}
	if len(ids) > 0 {
		log.Printf("cleanup closed %d expired visitors", len(ids))
	}
}
