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

// CapacityLedger 票種容量帳本。reserved 只透過 Lua 腳本原子變動，
// 不會出現兩個請求同時看到最後一張票都成功的窗口。
type CapacityLedger interface {
	// 預熱：把票種容量載入 Redis
	WarmUp(ctx context.Context, ticketTypeID int, totalCapacity int, reservedCount int) error
	// 取得剩餘可售量
	GetRemaining(ctx context.Context, ticketTypeID int) (int, error)
	// 保留：原子 check-and-increment，成功回傳 hold token
	Reserve(ctx context.Context, ticketTypeID int, quantity int, ttl time.Duration) (string, error)
	// 提交：hold 轉為永久，回傳 false 表示 hold 已過期或不存在
	Commit(ctx context.Context, token string) (bool, error)
	// 釋放：退回容量，冪等（重複釋放只會退一次）
	Release(ctx context.Context, token string) (bool, error)
	// 回收所有已過期的 hold，回傳釋放數量
	ReapExpired(ctx context.Context, now time.Time) (int, error)
}

type CapacityLedgerImpl struct {
	client *redis.Client
}

func NewCapacityLedger(client *redis.Client) CapacityLedger {
	return &CapacityLedgerImpl{client: client}
}

func (l *CapacityLedgerImpl) infoKey(ticketTypeID int) string {
	return fmt.Sprintf("captype:%d:info", ticketTypeID)
}

func (l *CapacityLedgerImpl) holdKey(token string) string {
	return fmt.Sprintf("hold:capacity:%s", token)
}

// holdsIndexKey 過期回收用的索引，score 是 hold 的到期時間
const capacityHoldsIndexKey = "capacity:holds"

func (l *CapacityLedgerImpl) WarmUp(ctx context.Context, ticketTypeID int, totalCapacity int, reservedCount int) error {
	key := l.infoKey(ticketTypeID)
	return l.client.HSet(ctx, key, map[string]interface{}{
		"total":    totalCapacity,
		"reserved": reservedCount,
	}).Err()
}

func (l *CapacityLedgerImpl) GetRemaining(ctx context.Context, ticketTypeID int) (int, error) {
	key := l.infoKey(ticketTypeID)
	result, err := l.client.HGetAll(ctx, key).Result()
	if err != nil {
		return -1, err
	}
	if len(result) == 0 {
		return -1, apperrors.ErrTicketTypeNotFound
	}

	total, err := strconv.Atoi(result["total"])
	if err != nil {
		return -1, fmt.Errorf("invalid total: %v", err)
	}
	reserved, err := strconv.Atoi(result["reserved"])
	if err != nil {
		return -1, fmt.Errorf("invalid reserved: %v", err)
	}

	return total - reserved, nil
}

/*
保留容量 (使用Lua腳本確保原子性)
1. 檢查票種資訊是否已預熱
2. 檢查 reserved + qty <= total
3. 執行扣減並寫入 hold 與過期索引
*/
func (l *CapacityLedgerImpl) Reserve(ctx context.Context, ticketTypeID int, quantity int, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(ttl).Unix()

	script := `
		local info_key = KEYS[1]
		local hold_key = KEYS[2]
		local index_key = KEYS[3]

		local token = ARGV[1]
		local qty = tonumber(ARGV[2])
		local deadline = tonumber(ARGV[3])
		local ticket_type_id = ARGV[4]

		local info = redis.call('HMGET', info_key, 'total', 'reserved')
		local total = info[1]
		local reserved = info[2]

		if not total or not reserved then
			return -3 -- 錯誤：票種未預熱
		end

		if tonumber(reserved) + qty > tonumber(total) then
			return -1 -- 錯誤：容量不足
		end

		redis.call('HINCRBY', info_key, 'reserved', qty)
		redis.call('HSET', hold_key, 'ticket_type_id', ticket_type_id, 'quantity', qty)
		redis.call('ZADD', index_key, deadline, token)

		return 1 -- 保留成功
	`

	keys := []string{l.infoKey(ticketTypeID), l.holdKey(token), capacityHoldsIndexKey}
	result, err := l.client.Eval(ctx, script, keys, token, quantity, deadline, ticketTypeID).Result()
	if err != nil {
		return "", err
	}

	switch result.(int64) {
	case 1:
		return token, nil
	case -1:
		return "", apperrors.ErrCapacityExhausted
	case -3:
		return "", apperrors.ErrTicketTypeNotFound
	default:
		return "", errors.New("unexpected result")
	}
}

func (l *CapacityLedgerImpl) Commit(ctx context.Context, token string) (bool, error) {
	// commit 只需要拆掉 hold，扣掉的容量就是永久的
	script := `
		local hold_key = KEYS[1]
		local index_key = KEYS[2]
		local token = ARGV[1]

		if redis.call('EXISTS', hold_key) == 0 then
			return 0 -- hold 已過期或已處理
		end

		redis.call('DEL', hold_key)
		redis.call('ZREM', index_key, token)
		return 1
	`

	result, err := l.client.Eval(ctx, script, []string{l.holdKey(token), capacityHoldsIndexKey}, token).Result()
	if err != nil {
		return false, err
	}
	return result.(int64) == 1, nil
}

func (l *CapacityLedgerImpl) Release(ctx context.Context, token string) (bool, error) {
	// hold 不在就直接回報 0，重複釋放不會重複退容量
	script := `
		local hold_key = KEYS[1]
		local index_key = KEYS[2]
		local token = ARGV[1]

		local hold = redis.call('HMGET', hold_key, 'ticket_type_id', 'quantity')
		local ticket_type_id = hold[1]
		local qty = hold[2]

		if not ticket_type_id then
			return 0
		end

		local info_key = 'captype:' .. ticket_type_id .. ':info'
		redis.call('HINCRBY', info_key, 'reserved', -tonumber(qty))
		redis.call('DEL', hold_key)
		redis.call('ZREM', index_key, token)
		return 1
	`

	result, err := l.client.Eval(ctx, script, []string{l.holdKey(token), capacityHoldsIndexKey}, token).Result()
	if err != nil {
		return false, err
	}
	return result.(int64) == 1, nil
}

func (l *CapacityLedgerImpl) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	tokens, err := l.client.ZRangeByScore(ctx, capacityHoldsIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, token := range tokens {
		released, err := l.Release(ctx, token)
		if err != nil {
			return reaped, err
		}
		if !released {
			// 別的呼叫已經處理掉了，把殘留的索引清掉
			l.client.ZRem(ctx, capacityHoldsIndexKey, token)
			continue
		}
		reaped++
	}

	return reaped, nil
}
