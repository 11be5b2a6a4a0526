package server

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"robotarena/protocol"
)

const (
	KindEvent     = "event"     // 仿真发出的出站事件
	KindLifecycle = "lifecycle" // 连接、断开、替换
)

// JournalEntry 一条事件记录
type JournalEntry struct {
	ID      int64     `json:"id"`
	At      time.Time `json:"at"`
	Session string    `json:"session"`
	Kind    string    `json:"kind"`
	Name    string    `json:"name"`
	Arg     string    `json:"arg,omitempty"`
}

// Journal 把出站事件与连接生命周期写入 SQLite。写入在独立协程中进行，不阻塞 Tick。
// 只记录，不用于恢复仿真状态。
type Journal struct {
	db   *sql.DB
	rows chan JournalEntry
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	session string
	dropped int64
}

// OpenJournal 打开（或创建）数据库并启动写协程
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", path)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable wal")
	}
	j := &Journal{
		db:   db,
		rows: make(chan JournalEntry, 1024),
		done: make(chan struct{}),
	}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	go j.writer()
	return j, nil
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		session TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		arg TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session);
	`
	_, err := j.db.Exec(schema)
	return errors.Wrap(err, "migrate journal")
}

// SetSession 之后的记录都归到该会话
func (j *Journal) SetSession(session string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.session = session
	j.mu.Unlock()
}

// Send 实现 sim.Outbound，与中继一起接收仿真事件
func (j *Journal) Send(cmd protocol.Command) {
	if j == nil {
		return
	}
	var arg string
	if cmd.Arg != nil {
		if b, err := json.Marshal(cmd.Arg); err == nil {
			arg = string(b)
		}
	}
	j.push(KindEvent, cmd.Name, arg)
}

// Record 记录连接生命周期，如 connected / disconnected / replaced
func (j *Journal) Record(name, detail string) {
	if j == nil {
		return
	}
	j.push(KindLifecycle, name, detail)
}

func (j *Journal) push(kind, name, arg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	e := JournalEntry{At: time.Now(), Session: j.session, Kind: kind, Name: name, Arg: arg}
	select {
	case j.rows <- e:
	default:
		j.dropped++
	}
}

func (j *Journal) writer() {
	defer close(j.done)
	for e := range j.rows {
		_, err := j.db.Exec(
			"INSERT INTO events (at, session, kind, name, arg) VALUES (?, ?, ?, ?, ?)",
			e.At.UnixMilli(), e.Session, e.Kind, e.Name, e.Arg,
		)
		if err != nil {
			Log.Errorw("journal insert", "name", e.Name, "err", err)
		}
	}
}

// Recent 最近的 limit 条记录，新的在前
func (j *Journal) Recent(limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(
		"SELECT id, at, session, kind, name, arg FROM events ORDER BY id DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query journal")
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var at int64
		if err := rows.Scan(&e.ID, &at, &e.Session, &e.Kind, &e.Name, &e.Arg); err != nil {
			return nil, errors.Wrap(err, "scan journal row")
		}
		e.At = time.UnixMilli(at)
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate journal")
}

// Dropped 因写队列满而丢弃的记录数
func (j *Journal) Dropped() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Close 写完已排队的记录后关闭数据库
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.rows)
	j.mu.Unlock()

	<-j.done
	return errors.Wrap(j.db.Close(), "close journal")
}
