// Package poscache is a write-through cache of positions with two secondary
// indexes (by agent and by token). Index entries that point at missing payloads
// are repaired by the bulk operations that walk them.
package poscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/observability"
	"autotrade-coordinator/internal/storage"
)

// Key prefixes.
const (
	positionKeyPrefix   = "position:"
	agentIndexPrefix    = "agent_positions:"
	tokenIndexPrefix    = "token_positions:"
	repairStaleIndex    = "stale_index"
	repairCorruptRecord = "corrupt_payload"
)

// PositionKey returns the payload key of a position.
func PositionKey(id string) string { return positionKeyPrefix + id }

// AgentIndexKey returns the index key of an agent's positions.
func AgentIndexKey(agentID string) string { return agentIndexPrefix + agentID }

// TokenIndexKey returns the index key of a token's positions. The address is normalized.
func TokenIndexKey(tokenAddress string) string {
	return tokenIndexPrefix + domain.NormalizeAddress(tokenAddress)
}

// Cache stores JSON position payloads in a storage.CacheBackend.
// Operations are per key; bulk operations are not transactional.
type Cache struct {
	backend storage.CacheBackend
	log     logrus.FieldLogger
}

// New creates a cache over backend.
func New(backend storage.CacheBackend, log logrus.FieldLogger) *Cache {
	return &Cache{backend: backend, log: logging.OrDefault(log)}
}

// payloadState classifies a payload read.
type payloadState int

const (
	payloadOK payloadState = iota
	payloadMissing
	payloadMalformed
)

// read loads and decodes the payload of id.
func (c *Cache) read(ctx context.Context, id string) (*domain.PositionRecord, payloadState, error) {
	raw, err := c.backend.Get(ctx, PositionKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, payloadMissing, nil
		}
		return nil, payloadMissing, err
	}

	var rec domain.PositionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.ID == "" {
		c.log.WithField(logging.FieldPosition, id).WithError(err).Warn("malformed position payload in cache")
		return nil, payloadMalformed, nil
	}
	return &rec, payloadOK, nil
}

// Get returns the cached position, or nil on a miss. A malformed payload is a miss.
func (c *Cache) Get(ctx context.Context, id string) (*domain.PositionRecord, error) {
	rec, _, err := c.read(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", id, err)
	}
	return rec, nil
}

// Set writes the payload and adds the id to the agent and token indexes.
func (c *Cache) Set(ctx context.Context, rec *domain.PositionRecord) error {
	if rec == nil || rec.ID == "" || rec.AgentID == "" {
		return storage.ErrInvalidInput
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode position %s: %w", rec.ID, err)
	}

	if err := c.backend.Set(ctx, PositionKey(rec.ID), string(data)); err != nil {
		return fmt.Errorf("set position %s: %w", rec.ID, err)
	}
	if err := c.backend.SAdd(ctx, AgentIndexKey(rec.AgentID), rec.ID); err != nil {
		return fmt.Errorf("index position %s by agent: %w", rec.ID, err)
	}
	if err := c.backend.SAdd(ctx, TokenIndexKey(rec.TokenAddress), rec.ID); err != nil {
		return fmt.Errorf("index position %s by token: %w", rec.ID, err)
	}
	return nil
}

// Delete removes the payload and the id from both indexes.
func (c *Cache) Delete(ctx context.Context, ref domain.PositionRef) error {
	if err := c.backend.Del(ctx, PositionKey(ref.ID)); err != nil {
		return fmt.Errorf("delete position %s: %w", ref.ID, err)
	}
	if err := c.unindex(ctx, AgentIndexKey(ref.AgentID), ref.ID); err != nil {
		return err
	}
	return c.unindex(ctx, TokenIndexKey(ref.TokenAddress), ref.ID)
}

// GetIDsByAgent returns the ids indexed under the agent.
func (c *Cache) GetIDsByAgent(ctx context.Context, agentID string) ([]string, error) {
	ids, err := c.backend.SMembers(ctx, AgentIndexKey(agentID))
	if err != nil {
		return nil, fmt.Errorf("read agent index %s: %w", agentID, err)
	}
	return ids, nil
}

// GetIDsByToken returns the ids indexed under the token.
func (c *Cache) GetIDsByToken(ctx context.Context, tokenAddress string) ([]string, error) {
	ids, err := c.backend.SMembers(ctx, TokenIndexKey(tokenAddress))
	if err != nil {
		return nil, fmt.Errorf("read token index %s: %w", domain.NormalizeAddress(tokenAddress), err)
	}
	return ids, nil
}

// DeleteAllForAgent removes every position indexed under the agent and the agent index.
// Malformed payloads are deleted without token-index cleanup. Per-position
// failures are logged and skipped. Returns the number of payloads removed.
func (c *Cache) DeleteAllForAgent(ctx context.Context, agentID string) (int, error) {
	ids, err := c.GetIDsByAgent(ctx, agentID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		log := c.log.WithFields(logrus.Fields{logging.FieldAgent: agentID, logging.FieldPosition: id})

		rec, state, err := c.read(ctx, id)
		if err != nil {
			log.WithError(err).Warn("read position during agent purge")
			continue
		}

		if state != payloadMissing {
			if err := c.backend.Del(ctx, PositionKey(id)); err != nil {
				log.WithError(err).Warn("delete position during agent purge")
				continue
			}
			deleted++
		}
		if state == payloadOK {
			if err := c.unindex(ctx, TokenIndexKey(rec.TokenAddress), id); err != nil {
				log.WithError(err).Warn("unindex token during agent purge")
			}
		}
		if err := c.backend.SRem(ctx, AgentIndexKey(agentID), id); err != nil {
			log.WithError(err).Warn("unindex agent during agent purge")
		}
	}

	return deleted, nil
}

// DeleteAllForWallet removes the agent's positions held by walletAddress and repairs
// the agent index on the way:
//   - an id without payload is dropped from the index;
//   - a payload of another wallet is left untouched;
//   - a matching payload is deleted and unindexed;
//   - a malformed payload is deleted and unindexed, and counts as deleted.
//
// Per-position failures lower the count and are never rolled back.
// Returns the number of payloads removed.
func (c *Cache) DeleteAllForWallet(ctx context.Context, agentID, walletAddress string) (int, error) {
	ids, err := c.GetIDsByAgent(ctx, agentID)
	if err != nil {
		return 0, err
	}

	agentKey := AgentIndexKey(agentID)
	deleted := 0
	for _, id := range ids {
		log := c.log.WithFields(logrus.Fields{
			logging.FieldAgent:    agentID,
			logging.FieldWallet:   domain.NormalizeAddress(walletAddress),
			logging.FieldPosition: id,
		})

		rec, state, err := c.read(ctx, id)
		if err != nil {
			log.WithError(err).Warn("read position during wallet purge")
			continue
		}

		switch state {
		case payloadMissing:
			if err := c.backend.SRem(ctx, agentKey, id); err != nil {
				log.WithError(err).Warn("drop stale index entry")
				continue
			}
			observability.RecordCacheRepair(repairStaleIndex)
			log.Debug("dropped stale index entry")

		case payloadMalformed:
			if err := c.backend.Del(ctx, PositionKey(id)); err != nil {
				log.WithError(err).Warn("delete corrupt payload")
				continue
			}
			deleted++
			observability.RecordCacheRepair(repairCorruptRecord)
			if err := c.backend.SRem(ctx, agentKey, id); err != nil {
				log.WithError(err).Warn("unindex corrupt payload")
			}

		case payloadOK:
			if !domain.SameAddress(rec.WalletAddress, walletAddress) {
				continue
			}
			if err := c.backend.Del(ctx, PositionKey(id)); err != nil {
				log.WithError(err).Warn("delete position during wallet purge")
				continue
			}
			deleted++
			if err := c.backend.SRem(ctx, agentKey, id); err != nil {
				log.WithError(err).Warn("unindex agent during wallet purge")
			}
			if err := c.unindex(ctx, TokenIndexKey(rec.TokenAddress), id); err != nil {
				log.WithError(err).Warn("unindex token during wallet purge")
			}
		}
	}

	return deleted, nil
}

// Warm writes every position through to the cache. Failures are logged and counted out.
// Returns the number of positions cached.
func (c *Cache) Warm(ctx context.Context, positions []*domain.PositionRecord) int {
	n := 0
	for _, p := range positions {
		if err := c.Set(ctx, p); err != nil {
			c.log.WithField(logging.FieldPosition, p.ID).WithError(err).Warn("warm position cache")
			continue
		}
		n++
	}
	return n
}

// unindex removes id from the set at key. Backends drop a set with its last
// member inside SRem, so an emptied index never outlives a concurrent SAdd.
func (c *Cache) unindex(ctx context.Context, key, id string) error {
	if err := c.backend.SRem(ctx, key, id); err != nil {
		return fmt.Errorf("unindex %s from %s: %w", id, key, err)
	}
	return nil
}
