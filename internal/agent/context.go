package agent

import (
	"context"

	"github.com/AlexandrLebegue/thesis-llm/internal/models"
)

type uploadsContextKey struct{}
type scratchDirContextKey struct{}
type visitorContextKey struct{}

// WithUploads scopes the visitor's uploaded documents into the context so
// tools can resolve file names without touching the database.
func WithUploads(ctx context.Context, uploads []*models.Upload) context.Context {
	if len(uploads) == 0 {
		return ctx
	}
	copied := make([]*models.Upload, 0, len(uploads))
	for _, u := range uploads {
		if u == nil {
			continue
		}
		c := *u
		copied = append(copied, &c)
	}
	return context.WithValue(ctx, uploadsContextKey{}, copied)
}

// UploadsFromContext returns the uploads scoped by WithUploads, or nil.
func UploadsFromContext(ctx context.Context) []*models.Upload {
	val := ctx.Value(uploadsContextKey{})
	if val == nil {
		return nil
	}
	uploads, _ := val.([]*models.Upload)
	return uploads
}

// WithScratchDir scopes the visitor's scratch directory. Generator tools
// write artifacts there and nowhere else.
func WithScratchDir(ctx context.Context, dir string) context.Context {
	if dir == "" {
		return ctx
	}
	return context.WithValue(ctx, scratchDirContextKey{}, dir)
}

// ScratchDirFromContext returns the scratch directory scoped by
// WithScratchDir, or "".
func ScratchDirFromContext(ctx context.Context) string {
	dir, _ := ctx.Value(scratchDirContextKey{}).(string)
	return dir
}

// WithVisitor scopes the visitor id for artifact bookkeeping.
func WithVisitor(ctx context.Context, visitorID int64) context.Context {
	if visitorID <= 0 {
		return ctx
	}
	return context.WithValue(ctx, visitorContextKey{}, visitorID)
}

// VisitorFromContext returns the visitor id scoped by WithVisitor.
func VisitorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(visitorContextKey{}).(int64)
	return id, ok
}
