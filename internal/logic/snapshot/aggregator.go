package snapshot

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"anchor-snapshot-sol/internal/logic/accountparser"
	"anchor-snapshot-sol/internal/metrics"
	"anchor-snapshot-sol/internal/pkg/logger"
	"anchor-snapshot-sol/internal/pkg/utils"

	"github.com/zeromicro/go-zero/core/threading"
)

var errPanicked = errors.New("decode panicked")

type Options struct {
	// AllowTypes 允许进入快照的账户类型；为空时收录所有结构化解码成功的账户
	AllowTypes []string
	// Workers 并发解码的协程数，<=0 时使用 runtime.NumCPU()
	Workers int
	// Metrics 可以为 nil
	Metrics *metrics.Metrics
}

// Failure 单个账户的解码失败，不影响其它账户
type Failure struct {
	Pubkey string
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Pubkey, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

type Result struct {
	Snapshot  *Snapshot
	Failures  []Failure
	Skipped   int // 不在 AllowTypes 中（或只有 discriminator）的账户数
	Fallbacks int // 只记录 discriminator 的账户数（无论是否收录）

	mu sync.Mutex
}

// Aggregator 并发解码一批账户并汇总为快照。只读状态，可重复调用
type Aggregator struct {
	parser  *accountparser.Parser
	allow   map[string]struct{}
	workers int
	metrics *metrics.Metrics
}

func New(parser *accountparser.Parser, opts Options) *Aggregator {
	a := &Aggregator{
		parser:  parser,
		workers: opts.Workers,
		metrics: opts.Metrics,
	}
	if a.workers <= 0 {
		a.workers = runtime.NumCPU()
	}
	if len(opts.AllowTypes) > 0 {
		a.allow = make(map[string]struct{}, len(opts.AllowTypes))
		for _, t := range opts.AllowTypes {
			a.allow[t] = struct{}{}
		}
	}
	return a
}

type outcome struct {
	acc *accountparser.DecodedAccount
	err error
}

// Aggregate 解码 items 并生成快照。同一 pubkey 出现多次时以 items 中最后一次为准
func (a *Aggregator) Aggregate(items []RawAccount) *Result {
	start := time.Now()
	outcomes := utils.ParallelMap(items, a.workers, a.decode)

	res := &Result{Snapshot: NewSnapshot()}
	for i, o := range outcomes {
		a.collect(res, items[i], o)
	}
	a.finish(res, start)
	return res
}

// AggregateStream 从 in 中读取账户直到 in 被关闭。重复 pubkey 的保留顺序不确定
func (a *Aggregator) AggregateStream(in <-chan RawAccount) *Result {
	start := time.Now()
	res := &Result{Snapshot: NewSnapshot()}

	var wg sync.WaitGroup
	wg.Add(a.workers)
	for w := 0; w < a.workers; w++ {
		go func() {
			defer wg.Done()
			for item := range in {
				o := outcome{err: errPanicked}
				threading.RunSafe(func() {
					o = a.decode(item)
				})
				a.collect(res, item, o)
			}
		}()
	}
	wg.Wait()
	a.finish(res, start)
	return res
}

func (a *Aggregator) decode(item RawAccount) outcome {
	acc, err := a.parser.Parse(item.Pubkey, item.Data)
	return outcome{acc: acc, err: err}
}

func (a *Aggregator) collect(res *Result, item RawAccount, o outcome) {
	if o.err == nil && o.acc == nil {
		// ParallelMap 捕获 panic 后留下的零值
		o.err = errPanicked
	}
	if o.err != nil {
		logger.Errorf("[snapshot] decode account failed: %v", o.err)
		a.metrics.DecodeFailed()
		res.mu.Lock()
		res.Failures = append(res.Failures, Failure{Pubkey: item.Pubkey.String(), Err: o.err})
		res.mu.Unlock()
		return
	}

	acc := o.acc
	if acc.Fallback {
		a.metrics.AccountFallback(acc.AccountType)
	} else {
		a.metrics.AccountDecoded(acc.AccountType)
	}

	if !a.admit(acc) {
		a.metrics.AccountSkipped()
		res.mu.Lock()
		res.Skipped++
		if acc.Fallback {
			res.Fallbacks++
		}
		res.mu.Unlock()
		return
	}
	if acc.Fallback {
		res.mu.Lock()
		res.Fallbacks++
		res.mu.Unlock()
	}
	res.Snapshot.Put(acc)
}

func (a *Aggregator) admit(acc *accountparser.DecodedAccount) bool {
	if a.allow == nil {
		return !acc.Fallback
	}
	_, ok := a.allow[acc.AccountType]
	return ok
}

func (a *Aggregator) finish(res *Result, start time.Time) {
	elapsed := time.Since(start)
	a.metrics.SnapshotDone(res.Snapshot.Len(), elapsed.Seconds())
	logger.Infof("[snapshot] aggregated %d accounts, failures=%d, skipped=%d, fallbacks=%d, elapsed=%s",
		res.Snapshot.Len(), len(res.Failures), res.Skipped, res.Fallbacks, elapsed)
}
