package insight

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/finsight/pkg/models"
)

// SQLite driver names accepted by NewSQLiteBackend.
const (
	// DriverModernc is the pure Go driver (modernc.org/sqlite).
	DriverModernc = "sqlite"
	// DriverMattn is the cgo driver (github.com/mattn/go-sqlite3).
	DriverMattn = "sqlite3"
)

// DefaultDBName is the database file name inside the data directory.
const DefaultDBName = "insights.db"

// SQLiteBackend stores insights and lessons in a SQLite database.
// Insertion order follows the seq column.
type SQLiteBackend struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewSQLiteBackend opens (creating if needed) the database at dbPath with
// the named driver and applies pending migrations. An empty driver selects
// DriverModernc.
func NewSQLiteBackend(dbPath, driver string) (*SQLiteBackend, error) {
	switch driver {
	case "":
		driver = DriverModernc
	case DriverModernc, DriverMattn:
	default:
		return nil, fmt.Errorf("unknown sqlite driver %q", driver)
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	conn, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and writes serialized.
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent readers in other processes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	b := &SQLiteBackend{db: conn, dbPath: dbPath}
	if err := b.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

// Path returns the database path.
func (b *SQLiteBackend) Path() string {
	return b.dbPath
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Close()
}

// migrate creates the tables if they don't exist.
func (b *SQLiteBackend) migrate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS insight_schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var currentVersion int
	row := b.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM insight_schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Insights},
		{2, migrationV2Lessons},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := b.db.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return err
		}

		if _, err := tx.Exec("INSERT INTO insight_schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

const migrationV1Insights = `
CREATE TABLE IF NOT EXISTS insights (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	topic TEXT NOT NULL,
	subject TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_insights_topic_subject ON insights(topic, subject);
`

const migrationV2Lessons = `
CREATE TABLE IF NOT EXISTS lessons (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Load reads every insight and lesson in insertion order.
func (b *SQLiteBackend) Load() (*Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := NewSnapshot()
	if err := b.loadInsights(snap); err != nil {
		return nil, err
	}
	if err := b.loadLessons(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (b *SQLiteBackend) loadInsights(snap *Snapshot) error {
	rows, err := b.db.Query(`SELECT id, topic, subject, text, created_at FROM insights ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("query insights: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ins       models.Insight
			topic     string
			createdAt string
		)
		if err := rows.Scan(&ins.ID, &topic, &ins.Key, &ins.Text, &createdAt); err != nil {
			return fmt.Errorf("scan insight: %w", err)
		}
		ins.Topic = models.Topic(topic)
		ins.CreatedAt = parseTimeOrZero(createdAt)
		snap.add(ins)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate insights: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) loadLessons(snap *Snapshot) error {
	rows, err := b.db.Query(`SELECT text, created_at FROM lessons ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l         models.Lesson
			createdAt string
		)
		if err := rows.Scan(&l.Text, &createdAt); err != nil {
			return fmt.Errorf("scan lesson: %w", err)
		}
		l.CreatedAt = parseTimeOrZero(createdAt)
		snap.Lessons = append(snap.Lessons, l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate lessons: %w", err)
	}
	return nil
}

// AppendInsight inserts one insight.
func (b *SQLiteBackend) AppendInsight(ins models.Insight) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.db.Exec(`
		INSERT INTO insights (id, topic, subject, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		ins.ID,
		string(ins.Topic),
		ins.Key,
		ins.Text,
		formatTime(ins.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	return nil
}

// AppendLesson inserts one lesson.
func (b *SQLiteBackend) AppendLesson(l models.Lesson) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.db.Exec(`INSERT INTO lessons (text, created_at) VALUES (?, ?)`,
		l.Text,
		formatTime(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert lesson: %w", err)
	}
	return nil
}
