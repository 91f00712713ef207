package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"rentals/internal/domain/models"
	"rentals/internal/utils"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Directory is the partner lookup being cached.
type Directory interface {
	BankDetails(ctx context.Context, partnerID string) (models.BankDetails, error)
	FinanceStaff(ctx context.Context, partnerID string) ([]models.StaffMember, error)
}

const defaultTTL = 5 * time.Minute

// PartnerCache is a read-through Redis cache in front of a Directory.
// A Redis outage degrades to direct lookups.
type PartnerCache struct {
	Client *redis.Client
	Next   Directory
	TTL    time.Duration
}

func staffKey(partnerID string) string { return "rentals:partner:" + partnerID + ":finance_staff" }

func bankKey(partnerID string) string { return "rentals:partner:" + partnerID + ":bank" }

func (c PartnerCache) FinanceStaff(ctx context.Context, partnerID string) ([]models.StaffMember, error) {
	var staff []models.StaffMember
	if c.get(ctx, staffKey(partnerID), &staff) {
		return staff, nil
	}
	staff, err := c.Next.FinanceStaff(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, staffKey(partnerID), staff)
	return staff, nil
}

func (c PartnerCache) BankDetails(ctx context.Context, partnerID string) (models.BankDetails, error) {
	var bank models.BankDetails
	if c.get(ctx, bankKey(partnerID), &bank) {
		return bank, nil
	}
	bank, err := c.Next.BankDetails(ctx, partnerID)
	if err != nil {
		return models.BankDetails{}, err
	}
	// An empty account is not cached so newly added details show up immediately.
	if !bank.Empty() {
		c.set(ctx, bankKey(partnerID), bank)
	}
	return bank, nil
}

// Invalidate drops both cached entries for a partner.
func (c PartnerCache) Invalidate(ctx context.Context, partnerID string) error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Del(ctx, staffKey(partnerID), bankKey(partnerID)).Err()
}

func (c PartnerCache) get(ctx context.Context, key string, dst any) bool {
	if c.Client == nil {
		return false
	}
	raw, err := c.Client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			utils.LogWarn(ctx, "cache", "get", "redis read failed, using database", err, zap.String("key", key))
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		utils.LogWarn(ctx, "cache", "get", "corrupt cache entry", err, zap.String("key", key))
		return false
	}
	return true
}

func (c PartnerCache) set(ctx context.Context, key string, v any) {
	if c.Client == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if err := c.Client.Set(ctx, key, raw, ttl).Err(); err != nil {
		utils.LogWarn(ctx, "cache", "set", "redis write failed", err, zap.String("key", key))
	}
}
