// workers/wallet_sync_worker.go
package workers

import (
	"context"
	"errors"
	"time"

	"loyalty-draw-system/services"

	"github.com/sirupsen/logrus"
)

const walletsPath = "/api/v1/public/wallets"

// RemoteWallet is one entry of the wallet change feed. UserID is the
// external account id.
type RemoteWallet struct {
	UserID    string    `json:"user_id"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}

type walletChanges struct {
	Wallets []RemoteWallet `json:"wallets"`
}

// WalletSyncWorker links chain addresses to users.
type WalletSyncWorker struct {
	client   *SyncClient
	users    *services.UserService
	interval time.Duration
	since    time.Time
}

func NewWalletSyncWorker(client *SyncClient, users *services.UserService, interval time.Duration) *WalletSyncWorker {
	return &WalletSyncWorker{client: client, users: users, interval: interval}
}

func (w *WalletSyncWorker) Start(ctx context.Context) {
	go poll(ctx, "wallets", w.interval, w.SyncOnce)
}

// SyncOnce links every active wallet changed since the last batch. Wallets of
// users not mirrored yet are retried on the next batch.
func (w *WalletSyncWorker) SyncOnce(ctx context.Context) error {
	var changes walletChanges
	if err := w.client.FetchChanges(ctx, walletsPath, w.since, &changes); err != nil {
		return err
	}

	latest := w.since
	var linked, pending int
	for _, wallet := range changes.Wallets {
		if !wallet.IsActive || wallet.Address == "" {
			continue
		}
		err := w.users.LinkWallet(ctx, wallet.UserID, wallet.Address)
		if errors.Is(err, services.ErrNotFound) {
			pending++
			continue
		}
		if err != nil {
			return err
		}
		linked++
		if wallet.UpdatedAt.After(latest) {
			latest = wallet.UpdatedAt
		}
	}
	if pending == 0 {
		w.since = latest
	}

	if len(changes.Wallets) > 0 {
		log.WithFields(logrus.Fields{
			"worker":   "wallets",
			"received": len(changes.Wallets),
			"linked":   linked,
			"pending":  pending,
		}).Info("✅ wallets synced")
	}
	return nil
}
