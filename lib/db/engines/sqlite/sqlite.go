package sqlite

import (
	"bufio"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const (
	magicNum      = "SQLITEDB"
	sqliteVersion = 1
)

// region table rows
const (
	metaWriteIndex = "write_index"
	metaLedgerTime = "ledger_time"
	metaLiveUntil  = "live_until"
)

var log = logger.GetLogger("db")

// sqliteImpl stores one storage region in a SQLite database file.
// The write index, ledger clock and lease are mirrored in atomics so the hot read path
// never touches the region table.
type sqliteImpl struct {
	path       string
	db         *sql.DB
	currIndex  atomic.Uint64
	ledgerTime atomic.Uint64
	liveUntil  atomic.Uint64
}

// NewSQLiteDB creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for durable, append friendly writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// A single connection is used, so every batch transaction is serialized with all reads.
func NewSQLiteDB(path string) (db.KVDB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := applyPragmas(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &sqliteImpl{path: path, db: conn}
	if err := s.loadRegionMeta(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// loadRegionMeta reads the persisted write index, ledger clock and lease into memory.
func (s *sqliteImpl) loadRegionMeta() error {
	rows, err := s.db.Query(`SELECT name, value FROM region`)
	if err != nil {
		return fmt.Errorf("failed to read region metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("failed to scan region metadata: %w", err)
		}
		switch name {
		case metaWriteIndex:
			s.currIndex.Store(uint64(value))
		case metaLedgerTime:
			s.ledgerTime.Store(uint64(value))
		case metaLiveUntil:
			s.liveUntil.Store(uint64(value))
		}
	}
	return rows.Err()
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Apply commits the batch in one SQL transaction, together with the write index, the ledger time
// and the lease of the region.
func (s *sqliteImpl) Apply(batch db.Batch, writeIndex uint64) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	newIndex := max(s.currIndex.Load(), writeIndex)
	now := max(s.ledgerTime.Load(), batch.LedgerTime)
	liveUntil := s.liveUntil.Load()

	// a lapsed region is reclaimed before it is written again
	reclaimed := false
	if db.LeaseLapsed(liveUntil, now) {
		if _, err = tx.Exec(`DELETE FROM entries`); err != nil {
			return fmt.Errorf("failed to reclaim region: %w", err)
		}
		liveUntil = 0
		reclaimed = true
	}

	for _, w := range batch.Writes {
		value := w.Value
		if value == nil {
			value = []byte{}
		}
		_, err = tx.Exec(`
			INSERT INTO entries (key, value, write_index) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, write_index = excluded.write_index
			WHERE excluded.write_index >= entries.write_index`,
			w.Key, value, int64(writeIndex))
		if err != nil {
			return fmt.Errorf("failed to write key %q: %w", w.Key, err)
		}
	}

	if batch.Extend != nil {
		liveUntil = db.ExtendedLease(liveUntil, batch.Extend.Threshold, batch.Extend.ExtendTo, now)
	}

	if err = putMeta(tx, metaWriteIndex, newIndex); err != nil {
		return err
	}
	if err = putMeta(tx, metaLedgerTime, now); err != nil {
		return err
	}
	if err = putMeta(tx, metaLiveUntil, liveUntil); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	storeMax(&s.currIndex, newIndex)
	storeMax(&s.ledgerTime, now)
	s.liveUntil.Store(liveUntil)
	if reclaimed {
		log.Infof("region lease lapsed at ledger time %d, all entries of %s reclaimed", now, s.path)
	}
	return nil
}

func (s *sqliteImpl) Set(key string, value []byte, writeIndex uint64) error {
	return s.Apply(db.Batch{Writes: []db.Write{{Key: key, Value: value}}}, writeIndex)
}

func (s *sqliteImpl) ExtendTTL(threshold, extendTo uint64, writeIndex uint64) error {
	return s.Apply(db.Batch{Extend: &db.TTLExtension{Threshold: threshold, ExtendTo: extendTo}}, writeIndex)
}

// execer is implemented by *sql.DB and *sql.Tx
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func putMeta(e execer, name string, value uint64) error {
	_, err := e.Exec(`INSERT INTO region (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, int64(value))
	if err != nil {
		return fmt.Errorf("failed to write region metadata %s: %w", name, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

func (s *sqliteImpl) Get(key string) ([]byte, bool, error) {
	if db.LeaseLapsed(s.liveUntil.Load(), s.ledgerTime.Load()) {
		return nil, false, nil
	}

	var value []byte
	err := s.db.QueryRow(`SELECT value FROM entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

func (s *sqliteImpl) Has(key string) (bool, error) {
	if db.LeaseLapsed(s.liveUntil.Load(), s.ledgerTime.Load()) {
		return false, nil
	}

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM entries WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return true, nil
}

func (s *sqliteImpl) LiveUntil() uint64 {
	return s.liveUntil.Load()
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes all entries of the region in a portable binary format:
//
//	magic | version (u8) | write index | ledger time | live until | count |
//	count * (key len (u32) | key | index | value len (u32) | value)
//
// The read runs inside one transaction and therefore is a consistent cut.
func (s *sqliteImpl) Save(w io.Writer) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	writeIndex := s.currIndex.Load()
	ledgerTime := s.ledgerTime.Load()
	liveUntil := s.liveUntil.Load()
	lapsed := db.LeaseLapsed(liveUntil, ledgerTime)
	if lapsed {
		liveUntil = 0
	}

	var count uint64
	if !lapsed {
		if err := tx.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
			return fmt.Errorf("failed to count entries: %w", err)
		}
	}

	bw := bufio.NewWriterSize(w, 1024*1024)
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	for _, field := range []any{uint8(sqliteVersion), writeIndex, ledgerTime, liveUntil, count} {
		if err := binary.Write(bw, binary.LittleEndian, field); err != nil {
			return err
		}
	}

	if count > 0 {
		rows, err := tx.Query(`SELECT key, value, write_index FROM entries ORDER BY key`)
		if err != nil {
			return fmt.Errorf("failed to read entries: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var key string
			var value []byte
			var index int64
			if err := rows.Scan(&key, &value, &index); err != nil {
				return fmt.Errorf("failed to scan entry: %w", err)
			}
			if err := binary.Write(bw, binary.LittleEndian, uint32(len(key))); err != nil {
				return err
			}
			if _, err := bw.WriteString(key); err != nil {
				return err
			}
			if err := binary.Write(bw, binary.LittleEndian, uint64(index)); err != nil {
				return err
			}
			if err := binary.Write(bw, binary.LittleEndian, uint32(len(value))); err != nil {
				return err
			}
			if _, err := bw.Write(value); err != nil {
				return err
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load replaces the content of the database with the snapshot read from r.
func (s *sqliteImpl) Load(r io.Reader) (err error) {
	br := bufio.NewReaderSize(r, 1024*1024)

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != sqliteVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, sqliteVersion)
	}

	var writeIndex, ledgerTime, liveUntil, count uint64
	for _, field := range []*uint64{&writeIndex, &ledgerTime, &liveUntil, &count} {
		if err := binary.Read(br, binary.LittleEndian, field); err != nil {
			return err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM entries`); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}

	for i := uint64(0); i < count; i++ {
		var keyLen uint32
		if err = binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		key := make([]byte, keyLen)
		if _, err = io.ReadFull(br, key); err != nil {
			return err
		}
		var index uint64
		if err = binary.Read(br, binary.LittleEndian, &index); err != nil {
			return err
		}
		var valueLen uint32
		if err = binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		value := make([]byte, valueLen)
		if _, err = io.ReadFull(br, value); err != nil {
			return err
		}
		if _, err = tx.Exec(`INSERT INTO entries (key, value, write_index) VALUES (?, ?, ?)`,
			string(key), value, int64(index)); err != nil {
			return fmt.Errorf("failed to restore key %q: %w", key, err)
		}
	}

	for name, value := range map[string]uint64{
		metaWriteIndex: writeIndex,
		metaLedgerTime: ledgerTime,
		metaLiveUntil:  liveUntil,
	} {
		if err = putMeta(tx, name, value); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.currIndex.Store(writeIndex)
	s.ledgerTime.Store(ledgerTime)
	s.liveUntil.Store(liveUntil)
	return nil
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

func (s *sqliteImpl) GetInfo() db.DatabaseInfo {
	var entries int
	var size sql.NullInt64
	if err := s.db.QueryRow(`SELECT COUNT(*), SUM(LENGTH(key) + LENGTH(value) + 8) FROM entries`).Scan(&entries, &size); err != nil {
		log.Warningf("failed to collect database info: %v", err)
	}

	meta := &struct {
		Path              string `json:"path"`
		CurrentWriteIndex uint64 `json:"current_write_index"`
		LedgerTime        uint64 `json:"ledger_time"`
		LiveUntil         uint64 `json:"live_until"`
		Entries           int    `json:"entries"`
	}{
		Path:              s.path,
		CurrentWriteIndex: s.currIndex.Load(),
		LedgerTime:        s.ledgerTime.Load(),
		LiveUntil:         s.liveUntil.Load(),
		Entries:           entries,
	}

	return db.DatabaseInfo{
		SizeBytes: int(size.Int64),
		DbType:    db.ImplSQLite,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureApply,
			db.FeatureGet, db.FeatureHas,
			db.FeatureExtendTTL,
			db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature reports the supported features. Lapsed regions are reclaimed lazily on the
// next write, there is no background collector.
func (s *sqliteImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureApply |
		db.FeatureGet |
		db.FeatureHas |
		db.FeatureExtendTTL |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

func (s *sqliteImpl) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

func (s *sqliteImpl) SetWriteIdx(index uint64) {
	if storeMax(&s.currIndex, index) {
		if err := putMeta(s.db, metaWriteIndex, s.currIndex.Load()); err != nil {
			log.Errorf("%v", err)
		}
	}
}

func (s *sqliteImpl) WriteIdx() uint64 {
	return s.currIndex.Load()
}

func (s *sqliteImpl) SetLedgerTime(timestamp uint64) {
	if storeMax(&s.ledgerTime, timestamp) {
		if err := putMeta(s.db, metaLedgerTime, s.ledgerTime.Load()); err != nil {
			log.Errorf("%v", err)
		}
	}
}

func (s *sqliteImpl) LedgerTime() uint64 {
	return s.ledgerTime.Load()
}

// storeMax stores v in a only if it is greater than the current value and reports whether it did.
func storeMax(a *atomic.Uint64, v uint64) bool {
	for {
		curr := a.Load()
		if v <= curr {
			return false
		}
		if a.CompareAndSwap(curr, v) {
			return true
		}
	}
}
