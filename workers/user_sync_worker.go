// workers/user_sync_worker.go
package workers

import (
	"context"
	"time"

	"loyalty-draw-system/services"

	"github.com/sirupsen/logrus"
)

const profilesPath = "/api/v1/public/profiles"

// RemoteProfile is one entry of the profile change feed.
type RemoteProfile struct {
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type profileChanges struct {
	Users []RemoteProfile `json:"users"`
}

// UserSyncWorker mirrors accounts from the profile service into users.
type UserSyncWorker struct {
	client   *SyncClient
	users    *services.UserService
	interval time.Duration
	since    time.Time
}

func NewUserSyncWorker(client *SyncClient, users *services.UserService, interval time.Duration) *UserSyncWorker {
	return &UserSyncWorker{client: client, users: users, interval: interval}
}

func (w *UserSyncWorker) Start(ctx context.Context) {
	go poll(ctx, "users", w.interval, w.SyncOnce)
}

// SyncOnce pulls the changes since the last successful batch.
func (w *UserSyncWorker) SyncOnce(ctx context.Context) error {
	var changes profileChanges
	if err := w.client.FetchChanges(ctx, profilesPath, w.since, &changes); err != nil {
		return err
	}

	latest := w.since
	var upserted, failed int
	for _, p := range changes.Users {
		if p.ExternalID == "" {
			failed++
			continue
		}
		if _, err := w.users.Upsert(ctx, p.ExternalID, p.Username); err != nil {
			failed++
			log.WithError(err).WithField("external_id", p.ExternalID).Warn("⚠️ failed to upsert user")
			continue
		}
		upserted++
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
	}
	if failed == 0 {
		w.since = latest
	}

	if len(changes.Users) > 0 {
		log.WithFields(logrus.Fields{
			"worker":   "users",
			"received": len(changes.Users),
			"upserted": upserted,
			"failed":   failed,
		}).Info("✅ users synced")
	}
	return nil
}
