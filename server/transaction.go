package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/giantswarm/oauth-grants/storage"
)

// transactionPayload is the part of a transaction stored as an opaque blob.
// The client travels separately as its identifier.
type transactionPayload struct {
	RedirectURI  string       `json:"redirect_uri"`
	Scope        []string     `json:"scope"`
	State        string       `json:"state,omitempty"`
	ResponseType ResponseType `json:"response_type"`
}

// EncodeTransaction serializes txn for storage. Only the client identifier
// is kept; the payload is sealed and bound to the transaction ID when an
// encryptor is configured.
func (c *Coordinator) EncodeTransaction(txn *Transaction) (*storage.TransactionRecord, error) {
	if txn == nil || txn.Client == nil || txn.ID == "" {
		return nil, fmt.Errorf("encode transaction: incomplete transaction")
	}

	data, err := json.Marshal(transactionPayload{
		RedirectURI:  txn.RedirectURI,
		Scope:        storage.CloneScope(txn.Scope),
		State:        txn.State,
		ResponseType: txn.ResponseType,
	})
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	payload := string(data)
	if c.encryptor.IsEnabled() {
		payload, err = c.encryptor.Seal(data, txn.ID)
		if err != nil {
			return nil, fmt.Errorf("encode transaction: %w", err)
		}
	}

	return &storage.TransactionRecord{
		ID:        txn.ID,
		ClientID:  txn.Client.ClientID,
		UserID:    txn.UserID,
		Payload:   payload,
		CreatedAt: txn.CreatedAt,
		ExpiresAt: txn.ExpiresAt,
	}, nil
}

// DecodeTransaction rebuilds a transaction from its stored form, rehydrating
// the client from the registry. A payload that cannot be opened or parsed is
// reported as an unknown transaction.
func (c *Coordinator) DecodeTransaction(ctx context.Context, rec *storage.TransactionRecord) (*Transaction, error) {
	if rec == nil {
		return nil, ErrUnknownTransaction
	}

	data := []byte(rec.Payload)
	if c.encryptor.IsEnabled() {
		opened, err := c.encryptor.Open(rec.Payload, rec.ID)
		if err != nil {
			c.logger.Warn("Failed to open transaction payload", "error", err)
			return nil, ErrUnknownTransaction
		}
		data = opened
	}

	var p transactionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("Failed to parse transaction payload", "error", err)
		return nil, ErrUnknownTransaction
	}
	rt, err := ParseResponseType(string(p.ResponseType))
	if err != nil {
		return nil, ErrUnknownTransaction
	}

	client, err := c.engine.GetClient(ctx, rec.ClientID)
	if err != nil {
		if errors.Is(err, ErrUnknownClient) {
			return nil, ErrUnknownTransaction
		}
		return nil, err
	}

	return &Transaction{
		ID:           rec.ID,
		Client:       client,
		RedirectURI:  p.RedirectURI,
		Scope:        storage.CloneScope(p.Scope),
		State:        p.State,
		ResponseType: rt,
		UserID:       rec.UserID,
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    rec.ExpiresAt,
	}, nil
}
