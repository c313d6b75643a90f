package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	apperrors "ticket-engine/pkg/app_errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PromoLedger 折扣碼帳本。啟用/有效期/額度的檢查跟 used 的遞增
// 是同一個 Lua 腳本，不會有兩個請求同時搶到最後一個名額。
type PromoLedger interface {
	// 預熱：把折扣碼狀態載入 Redis。expiresAt / startsAt 為零值表示不設限。
	WarmUp(ctx context.Context, promoID int, isActive bool, startsAt, expiresAt time.Time, usageLimit, usedCount int) error
	// 兌換：原子 check-and-increment，成功回傳 redemption token
	TryRedeem(ctx context.Context, promoID int, ttl time.Duration) (string, error)
	// 提交：兌換轉為永久
	Commit(ctx context.Context, token string) (bool, error)
	// 回滾：退回一次用量，冪等（重複回滾只會退一次）
	Rollback(ctx context.Context, token string) (bool, error)
	// 退回已提交的用量，票券取消時用
	Refund(ctx context.Context, promoID int) error
	// 回收所有已過期的暫定兌換
	ReapExpired(ctx context.Context, now time.Time) (int, error)
}

type PromoLedgerImpl struct {
	client *redis.Client
}

func NewPromoLedger(client *redis.Client) PromoLedger {
	return &PromoLedgerImpl{client: client}
}

func (l *PromoLedgerImpl) infoKey(promoID int) string {
	return fmt.Sprintf("promo:%d:info", promoID)
}

func (l *PromoLedgerImpl) holdKey(token string) string {
	return fmt.Sprintf("hold:promo:%s", token)
}

const promoHoldsIndexKey = "promo:holds"

func (l *PromoLedgerImpl) WarmUp(ctx context.Context, promoID int, isActive bool, startsAt, expiresAt time.Time, usageLimit, usedCount int) error {
	active := 0
	if isActive {
		active = 1
	}
	var startsUnix, expiresUnix int64
	if !startsAt.IsZero() {
		startsUnix = startsAt.Unix()
	}
	if !expiresAt.IsZero() {
		expiresUnix = expiresAt.Unix()
	}

	key := l.infoKey(promoID)
	return l.client.HSet(ctx, key, map[string]interface{}{
		"active":  active,
		"starts":  startsUnix,
		"expires": expiresUnix,
		"limit":   usageLimit,
		"used":    usedCount,
	}).Err()
}

/*
兌換折扣碼 (使用Lua腳本確保原子性)
1. 檢查折扣碼是否啟用
2. 檢查有效期（now 由呼叫端帶入，Redis 腳本內不能呼叫 TIME 後寫入）
3. 檢查額度（limit = 0 表示不限）
4. 遞增 used 並寫入暫定兌換
*/
func (l *PromoLedgerImpl) TryRedeem(ctx context.Context, promoID int, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	now := time.Now().Unix()
	deadline := now + int64(ttl.Seconds())

	script := `
		local info_key = KEYS[1]
		local hold_key = KEYS[2]
		local index_key = KEYS[3]

		local token = ARGV[1]
		local now = tonumber(ARGV[2])
		local deadline = tonumber(ARGV[3])
		local promo_id = ARGV[4]

		local info = redis.call('HMGET', info_key, 'active', 'starts', 'expires', 'limit', 'used')
		local active = info[1]
		local starts = info[2]
		local expires = info[3]
		local limit = info[4]
		local used = info[5]

		if not active then
			return -4 -- 錯誤：折扣碼未預熱
		end

		if tonumber(active) == 0 then
			return -1 -- 錯誤：折扣碼停用
		end

		if (tonumber(starts) > 0 and now < tonumber(starts))
			or (tonumber(expires) > 0 and now > tonumber(expires)) then
			return -2 -- 錯誤：不在有效期內
		end

		if tonumber(limit) > 0 and tonumber(used) >= tonumber(limit) then
			return -3 -- 錯誤：額度用完
		end

		redis.call('HINCRBY', info_key, 'used', 1)
		redis.call('HSET', hold_key, 'promo_id', promo_id)
		redis.call('ZADD', index_key, deadline, token)
		return 1 -- 兌換成功（暫定）
	`

	keys := []string{l.infoKey(promoID), l.holdKey(token), promoHoldsIndexKey}
	result, err := l.client.Eval(ctx, script, keys, token, now, deadline, promoID).Result()
	if err != nil {
		return "", err
	}

	switch result.(int64) {
	case 1:
		return token, nil
	case -1:
		return "", apperrors.ErrPromoInactive
	case -2:
		return "", apperrors.ErrPromoExpired
	case -3:
		return "", apperrors.ErrPromoLimitReached
	case -4:
		return "", apperrors.ErrPromoNotFound
	default:
		return "", errors.New("unexpected result")
	}
}

func (l *PromoLedgerImpl) Commit(ctx context.Context, token string) (bool, error) {
	script := `
		local hold_key = KEYS[1]
		local index_key = KEYS[2]
		local token = ARGV[1]

		if redis.call('EXISTS', hold_key) == 0 then
			return 0
		end

		redis.call('DEL', hold_key)
		redis.call('ZREM', index_key, token)
		return 1
	`

	result, err := l.client.Eval(ctx, script, []string{l.holdKey(token), promoHoldsIndexKey}, token).Result()
	if err != nil {
		return false, err
	}
	return result.(int64) == 1, nil
}

func (l *PromoLedgerImpl) Rollback(ctx context.Context, token string) (bool, error) {
	// hold 本身就是冪等標記：第二次回滾找不到 hold，不會再退一次
	script := `
		local hold_key = KEYS[1]
		local index_key = KEYS[2]
		local token = ARGV[1]

		local promo_id = redis.call('HGET', hold_key, 'promo_id')
		if not promo_id then
			return 0
		end

		local info_key = 'promo:' .. promo_id .. ':info'
		redis.call('HINCRBY', info_key, 'used', -1)
		redis.call('DEL', hold_key)
		redis.call('ZREM', index_key, token)
		return 1
	`

	result, err := l.client.Eval(ctx, script, []string{l.holdKey(token), promoHoldsIndexKey}, token).Result()
	if err != nil {
		return false, err
	}
	return result.(int64) == 1, nil
}

func (l *PromoLedgerImpl) Refund(ctx context.Context, promoID int) error {
	// used 不能低於 0
	script := `
		local info_key = KEYS[1]
		local used = redis.call('HGET', info_key, 'used')
		if used and tonumber(used) > 0 then
			redis.call('HINCRBY', info_key, 'used', -1)
		end
		return 1
	`
	return l.client.Eval(ctx, script, []string{l.infoKey(promoID)}).Err()
}

func (l *PromoLedgerImpl) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	tokens, err := l.client.ZRangeByScore(ctx, promoHoldsIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, token := range tokens {
		rolledBack, err := l.Rollback(ctx, token)
		if err != nil {
			return reaped, err
		}
		if !rolledBack {
			l.client.ZRem(ctx, promoHoldsIndexKey, token)
			continue
		}
		reaped++
	}

	return reaped, nil
}
