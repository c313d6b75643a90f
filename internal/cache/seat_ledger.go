package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	apperrors "ticket-engine/pkg/app_errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SeatLedger 座位帳本。保留是 all-or-nothing：任何一個座位
// 不是 available，整個請求失敗，不會留下部分 hold。
type SeatLedger interface {
	// 預熱：把座位表全部座位載入 Redis
	WarmUp(ctx context.Context, configID int, labels []string) error
	// 查詢座位狀態，回傳 label -> state
	GetStates(ctx context.Context, configID int, labels []string) (map[string]string, error)
	// 保留：len(labels) 必須等於 expectedCount，全部座位同時鎖定
	Reserve(ctx context.Context, configID int, labels []string, expectedCount int, ttl time.Duration) (string, error)
	// 提交：held -> booked
	Commit(ctx context.Context, token string) (bool, error)
	// 釋放：held -> available，冪等
	Release(ctx context.Context, token string) (bool, error)
	// 退座：booked -> available，票券取消時用
	Free(ctx context.Context, configID int, labels []string) error
	// 回收所有已過期的 hold
	ReapExpired(ctx context.Context, now time.Time) (int, error)
}

type SeatLedgerImpl struct {
	client *redis.Client
}

func NewSeatLedger(client *redis.Client) SeatLedger {
	return &SeatLedgerImpl{client: client}
}

func (l *SeatLedgerImpl) seatKey(configID int, label string) string {
	return fmt.Sprintf("seat:%d:%s", configID, label)
}

func (l *SeatLedgerImpl) holdKey(token string) string {
	return fmt.Sprintf("hold:seat:%s", token)
}

const seatHoldsIndexKey = "seats:holds"

func (l *SeatLedgerImpl) WarmUp(ctx context.Context, configID int, labels []string) error {
	pipe := l.client.Pipeline()
	for _, label := range labels {
		pipe.HSetNX(ctx, l.seatKey(configID, label), "state", "available")
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (l *SeatLedgerImpl) GetStates(ctx context.Context, configID int, labels []string) (map[string]string, error) {
	states := make(map[string]string, len(labels))
	for _, label := range labels {
		state, err := l.client.HGet(ctx, l.seatKey(configID, label), "state").Result()
		if err == redis.Nil {
			return nil, apperrors.ErrEventNotFound
		}
		if err != nil {
			return nil, err
		}
		states[label] = state
	}
	return states, nil
}

/*
保留座位 (使用Lua腳本確保原子性)
1. 先檢查每一個座位都是 available
2. 任何一個不是就整筆失敗，不做任何變更
3. 全部通過才一起標記 held 並寫入 hold
*/
func (l *SeatLedgerImpl) Reserve(ctx context.Context, configID int, labels []string, expectedCount int, ttl time.Duration) (string, error) {
	if len(labels) != expectedCount {
		return "", apperrors.ErrSeatCountMismatch
	}
	if len(labels) == 0 {
		return "", apperrors.ErrInvalidInput
	}

	token := uuid.New().String()
	deadline := time.Now().Add(ttl).Unix()

	script := `
		local hold_key = KEYS[1]
		local index_key = KEYS[2]

		local token = ARGV[1]
		local deadline = tonumber(ARGV[2])
		local config_id = ARGV[3]
		local labels = ARGV[4]

		-- 第一輪：全部座位必須 available
		for i = 3, #KEYS do
			local state = redis.call('HGET', KEYS[i], 'state')
			if not state then
				return -3 -- 錯誤：座位表未預熱
			end
			if state ~= 'available' then
				return -1 -- 錯誤：座位已被占用
			end
		end

		-- 第二輪：一起標記 held
		for i = 3, #KEYS do
			redis.call('HSET', KEYS[i], 'state', 'held', 'held_by', token)
		end

		redis.call('HSET', hold_key, 'config_id', config_id, 'labels', labels)
		redis.call('ZADD', index_key, deadline, token)
		return 1 -- 保留成功
	`

	keys := make([]string, 0, len(labels)+2)
	keys = append(keys, l.holdKey(token), seatHoldsIndexKey)
	for _, label := range labels {
		keys = append(keys, l.seatKey(configID, label))
	}

	result, err := l.client.Eval(ctx, script, keys,
		token, deadline, strconv.Itoa(configID), strings.Join(labels, ",")).Result()
	if err != nil {
		return "", err
	}

	switch result.(int64) {
	case 1:
		return token, nil
	case -1:
		return "", apperrors.ErrSeatConflict
	case -3:
		return "", apperrors.ErrEventNotFound
	default:
		return "", errors.New("unexpected result")
	}
}

func (l *SeatLedgerImpl) Commit(ctx context.Context, token string) (bool, error) {
	script := `
		local hold_key = KEYS[1]
		local index_key = KEYS[2]
		local token = ARGV[1]

		local hold = redis.call('HMGET', hold_key, 'config_id', 'labels')
		local config_id = hold[1]
		local labels = hold[2]

		if not config_id then
			return 0 -- hold 已過期或已處理
		end

		for label in string.gmatch(labels, '[^,]+') do
			local seat_key = 'seat:' .. config_id .. ':' .. label
			if redis.call('HGET', seat_key, 'held_by') == token then
				redis.call('HSET', seat_key, 'state', 'booked')
				redis.call('HDEL', seat_key, 'held_by')
			end
		end

		redis.call('DEL', hold_key)
		redis.call('ZREM', index_key, token)
		return 1
	`

	result, err := l.client.Eval(ctx, script, []string{l.holdKey(token), seatHoldsIndexKey}, token).Result()
	if err != nil {
		return false, err
	}
	return result.(int64) == 1, nil
}

func (l *SeatLedgerImpl) Release(ctx context.Context, token string) (bool, error) {
	// 只釋放還被這個 token 鎖著的座位，booked 的不動
	script := `
		local hold_key = KEYS[1]
		local index_key = KEYS[2]
		local token = ARGV[1]

		local hold = redis.call('HMGET', hold_key, 'config_id', 'labels')
		local config_id = hold[1]
		local labels = hold[2]

		if not config_id then
			return 0
		end

		for label in string.gmatch(labels, '[^,]+') do
			local seat_key = 'seat:' .. config_id .. ':' .. label
			if redis.call('HGET', seat_key, 'held_by') == token then
				redis.call('HSET', seat_key, 'state', 'available')
				redis.call('HDEL', seat_key, 'held_by')
			end
		end

		redis.call('DEL', hold_key)
		redis.call('ZREM', index_key, token)
		return 1
	`

	result, err := l.client.Eval(ctx, script, []string{l.holdKey(token), seatHoldsIndexKey}, token).Result()
	if err != nil {
		return false, err
	}
	return result.(int64) == 1, nil
}

func (l *SeatLedgerImpl) Free(ctx context.Context, configID int, labels []string) error {
	pipe := l.client.Pipeline()
	for _, label := range labels {
		pipe.HSet(ctx, l.seatKey(configID, label), "state", "available")
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (l *SeatLedgerImpl) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	tokens, err := l.client.ZRangeByScore(ctx, seatHoldsIndexKey, &redis.ZRangeBy{
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
			l.client.ZRem(ctx, seatHoldsIndexKey, token)
			continue
		}
		reaped++
	}

	return reaped, nil
}
