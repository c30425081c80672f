// workers/instance_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"time"

	"loyalty-draw-system/services"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const instancesPath = "/api/v1/public/nft-instances"

// RemoteInstance is one entry of the chain indexer's instance feed.
type RemoteInstance struct {
	UniqueNFTID      string          `json:"unique_nft_id"`
	ExternalUserID   string          `json:"external_user_id"`
	DefinitionPrefix string          `json:"definition_prefix"`
	Origin           string          `json:"origin"`
	OnChainID        *int64          `json:"on_chain_id,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	AcquiredAt       time.Time       `json:"acquired_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type instanceChanges struct {
	Instances []RemoteInstance `json:"instances"`
}

// InstanceSyncWorker reconciles instances minted on chain with the local
// records and keeps bingo cards current for them.
type InstanceSyncWorker struct {
	client   *SyncClient
	issuance *services.IssuanceService
	interval time.Duration
	since    time.Time
}

func NewInstanceSyncWorker(client *SyncClient, issuance *services.IssuanceService, interval time.Duration) *InstanceSyncWorker {
	return &InstanceSyncWorker{client: client, issuance: issuance, interval: interval}
}

func (w *InstanceSyncWorker) Start(ctx context.Context) {
	go poll(ctx, "nft-instances", w.interval, w.SyncOnce)
}

// SyncOnce applies the changes since the last fully applied batch. Records
// that fail (unknown owner, bad origin) hold the cursor so they are retried.
func (w *InstanceSyncWorker) SyncOnce(ctx context.Context) error {
	var changes instanceChanges
	if err := w.client.FetchChanges(ctx, instancesPath, w.since, &changes); err != nil {
		return err
	}

	latest := w.since
	var created, refreshed, failed int
	for _, remote := range changes.Instances {
		ok, err := w.issuance.Reconcile(ctx, services.ChainInstance{
			UniqueNFTID:      remote.UniqueNFTID,
			ExternalUserID:   remote.ExternalUserID,
			DefinitionPrefix: remote.DefinitionPrefix,
			Origin:           remote.Origin,
			OnChainID:        remote.OnChainID,
			Metadata:         datatypes.JSON(remote.Metadata),
			AcquiredAt:       remote.AcquiredAt,
		})
		if err != nil {
			failed++
			log.WithError(err).WithField("unique_nft_id", remote.UniqueNFTID).Warn("⚠️ failed to reconcile instance")
			continue
		}
		if ok {
			created++
		} else {
			refreshed++
		}
		if remote.UpdatedAt.After(latest) {
			latest = remote.UpdatedAt
		}
	}
	if failed == 0 {
		w.since = latest
	}

	if len(changes.Instances) > 0 {
		log.WithFields(logrus.Fields{
			"worker":    "nft-instances",
			"received":  len(changes.Instances),
			"created":   created,
			"refreshed": refreshed,
			"failed":    failed,
		}).Info("✅ nft instances reconciled")
	}
	return nil
}
