package gamification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RankedUser struct {
	UserID      uuid.UUID `json:"userId"`
	TotalPoints int64     `json:"totalPoints"`
}

// RankIndex mirrors user totals in an order-statistics structure so rank
// reads do not scan user_scores. The SQL general_rank column stays
// authoritative; the index is rebuilt by the reconciliation job.
//
// Set never lowers a stored total: totals only grow, so a late write from
// an older award must not undo a newer one.
type RankIndex interface {
	Set(ctx context.Context, userID uuid.UUID, total int64) error
	Rank(ctx context.Context, userID uuid.UUID) (rank int64, ok bool, err error)
	Top(ctx context.Context, n int) ([]RankedUser, error)
	Len(ctx context.Context) (int64, error)
	Rebuild(ctx context.Context, users []RankedUser) error
}

const generalRankingKey = "ranking:general"

// RedisRankIndex stores totals in a sorted set. Scores are negated so that
// ZRANGE orders by points descending and equal scores fall back to the
// member (user id) ascending, the same tiebreak the SQL ranking uses.
type RedisRankIndex struct {
	rdb *redis.Client
	key string
}

func NewRedisRankIndex(rdb *redis.Client) *RedisRankIndex {
	return &RedisRankIndex{rdb: rdb, key: generalRankingKey}
}

// Set uses ZADD LT: scores are negated, so only a higher total moves the entry.
func (r *RedisRankIndex) Set(ctx context.Context, userID uuid.UUID, total int64) error {
	return r.rdb.ZAddLT(ctx, r.key, redis.Z{Score: indexScore(total), Member: userID.String()}).Err()
}

func (r *RedisRankIndex) Len(ctx context.Context) (int64, error) {
	return r.rdb.ZCard(ctx, r.key).Result()
}

func (r *RedisRankIndex) Rank(ctx context.Context, userID uuid.UUID) (int64, bool, error) {
	pos, err := r.rdb.ZRank(ctx, r.key, userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return pos + 1, true, nil
}

func (r *RedisRankIndex) Top(ctx context.Context, n int) ([]RankedUser, error) {
	if n <= 0 {
		return []RankedUser{}, nil
	}
	zs, err := r.rdb.ZRangeWithScores(ctx, r.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	return fromZ(zs)
}

// Rebuild replaces the whole set atomically through a temporary key.
func (r *RedisRankIndex) Rebuild(ctx context.Context, users []RankedUser) error {
	if len(users) == 0 {
		return r.rdb.Del(ctx, r.key).Err()
	}
	tmp := r.key + ":rebuild"
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tmp)
		for start := 0; start < len(users); start += 500 {
			end := start + 500
			if end > len(users) {
				end = len(users)
			}
			pipe.ZAdd(ctx, tmp, toZ(users[start:end])...)
		}
		pipe.Rename(ctx, tmp, r.key)
		return nil
	})
	return err
}

func indexScore(total int64) float64 {
	return -float64(total)
}

func toZ(users []RankedUser) []redis.Z {
	zs := make([]redis.Z, 0, len(users))
	for _, u := range users {
		zs = append(zs, redis.Z{Score: indexScore(u.TotalPoints), Member: u.UserID.String()})
	}
	return zs
}

func fromZ(zs []redis.Z) ([]RankedUser, error) {
	out := make([]RankedUser, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			return nil, fmt.Errorf("rank index: unexpected member %v", z.Member)
		}
		id, err := uuid.Parse(member)
		if err != nil {
			return nil, fmt.Errorf("rank index: %w", err)
		}
		out = append(out, RankedUser{UserID: id, TotalPoints: int64(-z.Score)})
	}
	return out, nil
}
