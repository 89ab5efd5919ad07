package memory

import (
	"fmt"
	"hash/fnv"
	"math"
	"sync/atomic"
	"time"

	xrate "golang.org/x/time/rate"
)

// Partition はスループット予算を持つ物理パーティション
type Partition struct {
	id       string
	limiter  *xrate.Limiter // nil なら無制限
	accepted atomic.Uint64
	rejected atomic.Uint64
}

// newPartition は毎秒 budget 単位のキャパシティを持つパーティションを作成する
func newPartition(index int, budget float64) *Partition {
	p := &Partition{id: fmt.Sprintf("partition-%d", index)}
	if budget > 0 {
		burst := int(math.Ceil(budget))
		p.limiter = xrate.NewLimiter(xrate.Limit(budget), burst)
	}
	return p
}

// ID はパーティションIDを返す
func (p *Partition) ID() string {
	return p.id
}

// admit は now 時点で cost 単位を消費できるかを判定する
func (p *Partition) admit(now time.Time, cost float64) bool {
	if p.limiter == nil {
		p.accepted.Add(1)
		return true
	}
	n := int(math.Ceil(cost))
	if n > p.limiter.Burst() {
		// 1回で予算を超える書き込みは常に拒否される
		p.rejected.Add(1)
		return false
	}
	if !p.limiter.AllowN(now, n) {
		p.rejected.Add(1)
		return false
	}
	p.accepted.Add(1)
	return true
}

// PartitionStats はパーティションごとの受理数と拒否数
type PartitionStats struct {
	ID       string `json:"id"`
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
}

// Stats はパーティションの統計を返す
func (p *Partition) Stats() PartitionStats {
	return PartitionStats{
		ID:       p.id,
		Accepted: p.accepted.Load(),
		Rejected: p.rejected.Load(),
	}
}

// partitionIndex は振り分けキーから物理パーティションを選ぶ
func partitionIndex(key string, partitions int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(partitions))
}
