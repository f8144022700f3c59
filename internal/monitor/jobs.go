package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Saul-Punybz/regionwatch/internal/export"
	"github.com/Saul-Punybz/regionwatch/internal/models"
)

// ResultPruner deletes old results.
type ResultPruner interface {
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// AuthSessionPruner deletes expired dashboard logins.
type AuthSessionPruner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// BackupStore uploads and rotates backups.
type BackupStore interface {
	Configured() bool
	StoreBackup(ctx context.Context, data []byte) (string, error)
	PruneBackups(ctx context.Context, keep int) ([]string, error)
}

// CleanupOldResults removes results older than days days and records the
// outcome in the operator log.
func CleanupOldResults(ctx context.Context, results ResultPruner, logs EventLog, days int) (int64, error) {
	n, err := results.DeleteOlderThan(ctx, days)
	if err != nil {
		addLog(ctx, logs, models.LogError, "cleanup", fmt.Sprintf("result cleanup failed: %v", err))
		return 0, err
	}
	slog.Info("cleanup: old results removed", "days", days, "rows", n)
	addLog(ctx, logs, models.LogInfo, "cleanup", fmt.Sprintf("removed %d results older than %d days", n, days))
	return n, nil
}

// PruneAuthSessions removes expired login sessions.
func PruneAuthSessions(ctx context.Context, sessions AuthSessionPruner) (int64, error) {
	n, err := sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("cleanup: expired auth sessions removed", "rows", n)
	}
	return n, nil
}

// Backup writes a JSON snapshot of the database to object storage and keeps
// only the keep newest backups. It returns the key of the new backup.
func Backup(ctx context.Context, src export.Sources, store BackupStore, logs EventLog, keep int) (string, error) {
	if !store.Configured() {
		return "", fmt.Errorf("backup: object storage is not configured")
	}

	snap, err := export.BuildSnapshot(ctx, src)
	if err != nil {
		addLog(ctx, logs, models.LogError, "backup", err.Error())
		return "", err
	}
	data, err := snap.Marshal()
	if err != nil {
		addLog(ctx, logs, models.LogError, "backup", err.Error())
		return "", err
	}

	key, err := store.StoreBackup(ctx, data)
	if err != nil {
		addLog(ctx, logs, models.LogError, "backup", err.Error())
		return "", err
	}

	removed, err := store.PruneBackups(ctx, keep)
	if err != nil {
		slog.Warn("backup: prune failed", "err", err)
	}

	slog.Info("backup: complete",
		"key", key,
		"sites", len(snap.Sites),
		"results", len(snap.Results),
		"pruned", len(removed),
	)
	addLog(ctx, logs, models.LogInfo, "backup", fmt.Sprintf("backup %s stored, %d old backups removed", key, len(removed)))
	return key, nil
}

func addLog(ctx context.Context, logs EventLog, level, module, message string) {
	if logs == nil {
		return
	}
	if err := logs.Add(ctx, level, module, message); err != nil {
		slog.Warn("monitor: write log entry", "err", err)
	}
}
