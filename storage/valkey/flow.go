package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/giantswarm/oauth-grants/storage"
)

// ============================================================
// TransactionStore Implementation
// ============================================================

// SaveTransaction persists a pending authorization transaction until it expires
func (s *Store) SaveTransaction(ctx context.Context, txn *storage.TransactionRecord) error {
	if txn == nil || txn.ID == "" {
		return fmt.Errorf("invalid transaction")
	}
	if err := validateStringLength(txn.ID, MaxIDLength, "transactionID"); err != nil {
		return err
	}

	ttl := calculateTTL(txn.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("transaction already expired")
	}

	data, err := json.Marshal(toTransactionJSON(txn))
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.transactionKey(txn.ID)).Value(string(data)).ExSeconds(ttlSeconds(ttl)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	s.logger.Debug("Saved transaction", "client_id", txn.ClientID, "ttl", ttl)
	return nil
}

// GetTransaction retrieves a pending transaction
func (s *Store) GetTransaction(ctx context.Context, id string) (*storage.TransactionRecord, error) {
	return getAndUnmarshal(ctx, s, s.transactionKey(id), storage.ErrTransactionNotFound, fromTransactionJSON)
}

// DeleteTransaction removes a transaction and returns the DEL count
func (s *Store) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	n, err := s.deleteKey(ctx, s.transactionKey(id))
	if err != nil {
		return 0, fmt.Errorf("failed to delete transaction: %w", err)
	}
	return n, nil
}
