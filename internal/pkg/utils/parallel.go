package utils

import (
	"sync"
	"sync/atomic"

	"github.com/zeromicro/go-zero/core/threading"
)

// ParallelMap 使用最多 workers 个协程并发处理 input，结果顺序与 input 一致。
// - 输入为空或只有 1 个元素时直接在当前协程处理
// - fn 内部 panic 会被 threading.RunSafe 捕获，对应位置保留零值，其余元素照常处理
func ParallelMap[T any, R any](input []T, workers int, fn func(T) R) []R {
	n := len(input)
	results := make([]R, n)
	if n == 0 {
		return results
	}
	if n == 1 || workers <= 1 {
		for i, v := range input {
			threading.RunSafe(func() {
				results[i] = fn(v)
			})
		}
		return results
	}
	if workers > n {
		workers = n
	}

	var next int64 = -1
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= n {
					return
				}
				threading.RunSafe(func() {
					results[i] = fn(input[i])
				})
			}
		}()
	}
	wg.Wait()
	return results
}
