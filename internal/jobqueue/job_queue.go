// ============================================================================
// Roadcrew 任務佇列 - 工地共用的工作單
// ============================================================================
//
// Package: internal/jobqueue
// 文件: job_queue.go
// 功能: 保存玩家與機器產生的任務，讓機器依能力 (bitmask) 領取
//
// 設計理念:
//   1. FIFO 追加：Push / Add 一律加在尾端
//   2. 依身分移除：Remove 以指標比對，不看內容
//   3. 線性搜尋：FindFirst 從指定任務的下一個開始掃描
//   4. 重新排隊：Requeue 把做不完的任務放回尾端
//
// 任務生命週期:
//   Add/Push (在佇列中)
//      ↓ Claim() = FindFirst() + Remove()
//   機器持有 (current job)
//      ↓ 完成後丟棄，或 Requeue() 放回佇列
//
// 不變量:
//   一個任務要嘛在佇列中（最多一次），要嘛被一台機器持有，不會同時兩者。
//   Requeue 對已在佇列中的任務回傳 ErrDuplicateJob。
//
// 並發:
//   模擬是單執行緒逐 tick 執行，佇列本身不加鎖。
//   需要跨 goroutine 讀取時由 controller 的互斥鎖保護。
//
// ============================================================================

package jobqueue

import (
	"errors"

	"github.com/ChuLiYu/roadcrew/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// 任務已經在佇列中
	ErrDuplicateJob = errors.New("job already queued")
	// 任務為 nil
	ErrNilJob = errors.New("job is nil")
)

// Queue 任務佇列
type Queue struct {
	jobs    []*types.Job // 依序排列的任務
	nextSeq uint64       // 下一個指派的序號
}

// New 建立空的任務佇列
func New() *Queue {
	return &Queue{
		jobs: make([]*types.Job, 0),
	}
}

// Push 將任務加到尾端
//
// 參數說明：
//   - job: 要加入的任務；Seq 為 0 時由佇列指派
//
// 返回值：
//   - *types.Job: 同一個任務指標，方便串接
func (q *Queue) Push(job *types.Job) *types.Job {
	if job == nil {
		return nil
	}
	q.assignSeq(job)
	q.jobs = append(q.jobs, job)
	return job
}

// Add 建立任務並加到尾端
func (q *Queue) Add(kind types.JobKind, i, j, param int) *types.Job {
	return q.Push(types.NewJob(kind, i, j, param))
}

// InsertAfter 將任務插入在 after 之後
//
// after 為 nil 或不在佇列中時，等同 Push。
func (q *Queue) InsertAfter(after, job *types.Job) *types.Job {
	if job == nil {
		return nil
	}
	idx := q.indexOf(after)
	if after == nil || idx < 0 {
		return q.Push(job)
	}

	q.assignSeq(job)
	q.jobs = append(q.jobs, nil)
	copy(q.jobs[idx+2:], q.jobs[idx+1:])
	q.jobs[idx+1] = job
	return job
}

// FindFirst 找出第一個種類與 mask 相交的任務，不修改佇列
//
// 參數說明：
//   - mask: 任務種類 bitmask
//   - after: 從此任務的下一個開始掃描；nil 或已不在佇列中時從頭開始
//
// 返回值：
//   - *types.Job: 找到的任務，找不到時回傳 nil
func (q *Queue) FindFirst(mask types.JobKind, after *types.Job) *types.Job {
	start := 0
	if after != nil {
		if idx := q.indexOf(after); idx >= 0 {
			start = idx + 1
		}
	}

	for _, job := range q.jobs[start:] {
		if job.Kind.Has(mask) {
			return job
		}
	}
	return nil
}

// Remove 依身分移除任務
//
// 返回值：
//   - *types.Job: 被移除的任務，不在佇列中時回傳 nil
func (q *Queue) Remove(job *types.Job) *types.Job {
	idx := q.indexOf(job)
	if idx < 0 {
		return nil
	}
	copy(q.jobs[idx:], q.jobs[idx+1:])
	q.jobs[len(q.jobs)-1] = nil
	q.jobs = q.jobs[:len(q.jobs)-1]
	return job
}

// Claim 取出第一個符合 mask 的任務（FindFirst + Remove）
//
// 這是機器領取任務的唯一入口；取出後任務只屬於呼叫者。
func (q *Queue) Claim(mask types.JobKind) *types.Job {
	return q.Remove(q.FindFirst(mask, nil))
}

// Requeue 將機器無法完成的任務放回尾端，內容不變
//
// 錯誤處理：
//   - ErrNilJob: job 為 nil
//   - ErrDuplicateJob: 任務已在佇列中（違反獨佔不變量）
func (q *Queue) Requeue(job *types.Job) error {
	if job == nil {
		return ErrNilJob
	}
	if q.indexOf(job) >= 0 {
		return ErrDuplicateJob
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// Contains 檢查任務是否在佇列中
func (q *Queue) Contains(job *types.Job) bool {
	return q.indexOf(job) >= 0
}

// Len 佇列中的任務數
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Jobs 回傳佇列內容的複本（依序）
func (q *Queue) Jobs() []*types.Job {
	out := make([]*types.Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// CountByKind 各種類任務數量
func (q *Queue) CountByKind() map[types.JobKind]int {
	counts := make(map[types.JobKind]int, len(types.JobKinds()))
	for _, kind := range types.JobKinds() {
		counts[kind] = 0
	}
	for _, job := range q.jobs {
		counts[job.Kind]++
	}
	return counts
}

// Stats 取得各種類任務的統計資訊，鍵為種類名稱
func (q *Queue) Stats() map[string]int {
	stats := make(map[string]int)
	for kind, n := range q.CountByKind() {
		stats[kind.String()] = n
	}
	stats["total"] = len(q.jobs)
	return stats
}

// ============================================================================
// 內部輔助方法
// ============================================================================

func (q *Queue) indexOf(job *types.Job) int {
	if job == nil {
		return -1
	}
	for i, cur := range q.jobs {
		if cur == job {
			return i
		}
	}
	return -1
}

func (q *Queue) assignSeq(job *types.Job) {
	if job.Seq == 0 {
		q.nextSeq++
		job.Seq = q.nextSeq
	}
}
