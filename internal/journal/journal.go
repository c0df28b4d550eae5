package journal

// ============================================================================
// 任務日誌核心實作
// 職責：
// 1. 追加事件到日誌檔案（append-only，JSON lines）
// 2. 每筆事件附帶 CRC32 校驗和與 session id
// 3. 批次緩衝，緩衝滿或 Flush/Close 時寫入
// 4. 提供重放功能，供 `roadcrew journal` 分析
// ============================================================================

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBufferSize is used when Open receives a non-positive size.
const DefaultBufferSize = 64

// FileInterface 定義檔案操作所需的方法
// 這允許在測試中對檔案操作進行模擬
type FileInterface interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Close() error
}

// Journal 表示一個任務日誌實例
type Journal struct {
	mu         sync.Mutex    // 保護並發寫入
	file       FileInterface // 日誌檔案
	encoder    *json.Encoder // JSON 編碼器
	path       string        // 日誌檔案路徑
	session    string        // 本次執行的 session id
	seq        uint64        // 當前事件序號
	buffer     []Event       // 尚未寫入的事件
	bufferSize int
	closed     bool
}

// ============================================================================
// 公開介面
// ============================================================================

/*
Open 建立或開啟一個任務日誌

行為：
- 如果檔案不存在，建立新檔案（含上層目錄），seq 從 0 開始
- 如果檔案已存在，讀取最後一個事件的 seq 並繼續
- 產生新的 session id 並立即寫入一筆 SESSION 事件

參數：

	path       - 日誌檔案路徑
	bufferSize - 緩衝多少筆事件後寫入檔案

回傳：

	*Journal 實例，錯誤（如果有）
*/
func Open(path string, bufferSize int) (*Journal, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	var seq uint64
	if stat, statErr := file.Stat(); statErr == nil && stat.Size() > 0 {
		if last, err := LastEvent(path); err == nil && last != nil {
			seq = last.Seq
		}
	}

	j := &Journal{
		file:       file,
		encoder:    json.NewEncoder(file),
		path:       path,
		session:    uuid.NewString(),
		seq:        seq,
		buffer:     make([]Event, 0, bufferSize),
		bufferSize: bufferSize,
	}

	if err := j.Append(Event{Type: EventSession}); err != nil {
		file.Close()
		return nil, err
	}
	if err := j.Flush(); err != nil {
		file.Close()
		return nil, err
	}
	return j, nil
}

// Append 追加一個事件
//
// 行為：
// - 自動遞增 seq，填入 session 與時間戳
// - 計算 checksum
// - 緩衝滿時寫入檔案
func (j *Journal) Append(event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrJournalClosed
	}

	j.seq++
	event.Seq = j.seq
	event.Session = j.session
	event.Timestamp = time.Now().UnixMilli()
	event.Checksum = CalculateChecksum(event)

	j.buffer = append(j.buffer, event)
	if len(j.buffer) >= j.bufferSize {
		return j.flushLocked()
	}
	return nil
}

// Flush 立即寫入所有緩衝事件並同步到磁碟
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}
	return j.flushLocked()
}

// Close 寫入剩餘事件並關閉檔案；關閉後的實例不可重用
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if err := j.flushLocked(); err != nil {
		j.file.Close()
		return err
	}
	return j.file.Close()
}

// Session returns the id written on every event of this instance.
func (j *Journal) Session() string { return j.session }

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// LastSeq 取得當前的事件序號
func (j *Journal) LastSeq() uint64 {
	if j == nil {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// flushLocked 內部方法，假設調用者已經持有 j.mu 鎖
func (j *Journal) flushLocked() error {
	if len(j.buffer) == 0 {
		return nil
	}
	for _, event := range j.buffer {
		if err := j.encoder.Encode(event); err != nil {
			return fmt.Errorf("journal: write seq=%d: %w", event.Seq, err)
		}
	}
	j.buffer = j.buffer[:0]
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	return nil
}

// ============================================================================
// 重放
// ============================================================================

// Replay 依序讀取日誌檔案中的所有事件
//
// 行為：
// - 跳過空行
// - 無法解析的行回傳 *CorruptionError（errors.Is ErrCorruptedJournal）
// - 校驗和不符回傳 *ChecksumError（errors.Is ErrChecksumMismatch）
// - handler 回傳錯誤時立即停止
func Replay(path string, handler EventHandler) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			return &CorruptionError{Line: line, Cause: err}
		}
		if err := VerifyChecksum(event); err != nil {
			return err
		}
		if err := handler(event); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return &CorruptionError{Line: line + 1, Cause: err}
	}
	return nil
}
