package linkcheck

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/grantmate/internal/models"
)

// LinkStore is the part of the record store the verifier needs.
type LinkStore interface {
	ListGrantLinks(ctx context.Context, limit int) ([]models.GrantLink, error)
	UpdateLinkStatus(ctx context.Context, id uuid.UUID, status string, checkedAt time.Time) error
}

type Summary struct {
	Checked int            `json:"checked"`
	Updated int            `json:"updated"`
	Counts  map[string]int `json:"counts"`
}

// VerifySaved checks up to limit saved grant links and stores each status.
// It stops early when ctx is done and returns what it got through.
func (c *Checker) VerifySaved(ctx context.Context, store LinkStore, limit int) (Summary, error) {
	sum := Summary{Counts: make(map[string]int)}
	links, err := store.ListGrantLinks(ctx, limit)
	if err != nil {
		return sum, err
	}

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res := c.Check(ctx, link.URL)
		status := res.Status()
		sum.Checked++
		sum.Counts[status]++

		if err := store.UpdateLinkStatus(ctx, link.ID, status, res.CheckedAt); err != nil {
			c.logger.Warn("failed to store link status", zap.String("grant_id", link.ID.String()), zap.Error(err))
			continue
		}
		sum.Updated++
	}
	return sum, nil
}
