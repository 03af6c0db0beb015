package bot

import (
	"context"
	"time"

	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/iesreza/homa-teams-bot/apps/models"
)

// RetentionInterval is how often old deliveries are pruned
const RetentionInterval = time.Hour

// PruneDeliveries removes delivery log rows created before cutoff
func PruneDeliveries(cutoff time.Time) (int64, error) {
	result := db.Where("created_at < ?", cutoff).Delete(&models.BotDelivery{})
	return result.RowsAffected, result.Error
}

// runRetention prunes the delivery log until ctx is done. Several instances
// may prune concurrently; deletes are idempotent.
func runRetention(ctx context.Context, retention time.Duration) {
	ticker := time.NewTicker(RetentionInterval)
	defer ticker.Stop()

	for {
		removed, err := PruneDeliveries(time.Now().Add(-retention))
		if err != nil {
			log.Error("[bot] Failed to prune delivery log: %v", err)
		} else if removed > 0 {
			log.Info("[bot] Pruned %d deliveries older than %s", removed, retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
