package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dojo-hub/progression-engine/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP RANKING
// One sorted set per organization: member = student ID, score = total XP.
// ══════════════════════════════════════════════════════════════════════════════

// ErrStudentIDEmpty is returned when a ranking write has no student.
var ErrStudentIDEmpty = errors.New("ranking: student ID cannot be empty")

// Ranking maintains organization XP rankings. It implements query.Ranking.
type Ranking struct {
	cache *Cache
}

var _ query.Ranking = (*Ranking)(nil)

// NewRanking creates a new Ranking.
func NewRanking(cache *Cache) *Ranking {
	return &Ranking{cache: cache}
}

// Record sets the total XP of a student. This is an O(log N) operation.
func (r *Ranking) Record(ctx context.Context, organizationID, studentID string, totalXP int) error {
	if studentID == "" {
		return ErrStudentIDEmpty
	}
	return r.cache.Client().ZAdd(ctx, LeaderboardKey(organizationID), redis.Z{
		Score:  float64(totalXP),
		Member: studentID,
	}).Err()
}

// Top returns the limit best students, highest XP first.
func (r *Ranking) Top(ctx context.Context, organizationID string, limit int) ([]query.RankedStudent, error) {
	if limit <= 0 {
		return nil, nil
	}
	zs, err := r.cache.Client().ZRevRangeWithScores(ctx, LeaderboardKey(organizationID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("ranking top: %w", err)
	}

	out := make([]query.RankedStudent, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, query.RankedStudent{StudentID: id, TotalXP: int(z.Score)})
	}
	return out, nil
}

// Rebuild replaces a ranking atomically from a full snapshot.
func (r *Ranking) Rebuild(ctx context.Context, organizationID string, entries []query.RankedStudent) error {
	key := LeaderboardKey(organizationID)
	tmp := key + ":rebuild"

	pipe := r.cache.Client().TxPipeline()
	pipe.Del(ctx, tmp)
	if len(entries) > 0 {
		members := make([]redis.Z, 0, len(entries))
		for _, e := range entries {
			members = append(members, redis.Z{Score: float64(e.TotalXP), Member: e.StudentID})
		}
		pipe.ZAdd(ctx, tmp, members...)
		pipe.Rename(ctx, tmp, key)
	} else {
		pipe.Del(ctx, key)
	}
	_, err := pipe.Exec(ctx)
	return err
}
