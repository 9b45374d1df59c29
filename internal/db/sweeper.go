package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/avoronova/FinSync/internal/models"
	"go.uber.org/zap"
)

// mirrorOrigins maps each public mirror collection to the private
// collection its origin records live in.
var mirrorOrigins = map[string]string{
	models.CollectionPublicCategories:  models.CollectionCategories,
	models.CollectionPublicPeople:      models.CollectionPeople,
	models.CollectionPublicBudgetTmpls: models.CollectionBudgetTemplates,
}

// StartMirrorSweeper removes public mirror documents whose origin record
// no longer exists. Mirror deletes are best-effort on the write path, so
// a failed delete can leave an orphan behind; the sweeper repairs those
// with the given interval.
func StartMirrorSweeper(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for mirror, origin := range mirrorOrigins {
					res, err := db.ExecContext(ctx, `
                        DELETE FROM documents m
                         WHERE m.collection = $1
                           AND NOT EXISTS (
                               SELECT 1 FROM documents o
                                WHERE o.collection = $2
                                  AND o.id = m.data->>'originRecordId'
                           )
                    `, mirror, origin)
					if err != nil {
						log.Error("failed to sweep orphaned mirrors",
							zap.String("collection", mirror), zap.Error(err))
						continue
					}
					if rows, _ := res.RowsAffected(); rows > 0 {
						log.Info("removed orphaned mirrors",
							zap.String("collection", mirror), zap.Int64("removed", rows))
					}
				}
			}
		}
	}()
}
