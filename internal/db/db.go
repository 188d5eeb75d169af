package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

type Store interface {
	InsertMessage(ctx context.Context, m Message) error
	UpsertNode(ctx context.Context, n Node) error
	InsertNeighborReport(ctx context.Context, r NeighborReport) error
	InsertTraceroute(ctx context.Context, t Traceroute) error

	QueryMessages(ctx context.Context, start, end int64) ([]Message, error)
	QueryNeighborReports(ctx context.Context, start, end int64) ([]NeighborReport, error)
	QueryTracerouteHops(ctx context.Context, start, end int64) ([]TracerouteHop, error)
	GetNodes(ctx context.Context) (map[int64]Node, error)

	DeleteOlderThan(ctx context.Context, cutoff int64, batchSize int) (int64, error)
	CountOlderThan(ctx context.Context, cutoff int64) (map[string]int64, error)
	Vacuum(ctx context.Context) error

	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id INTEGER NOT NULL PRIMARY KEY,
	longname TEXT NOT NULL DEFAULT '',
	shortname TEXT NOT NULL DEFAULT '',
	hardware INTEGER NOT NULL DEFAULT 0,
	role TEXT NOT NULL DEFAULT '',
	last_seen INTEGER,
	latitude REAL,
	longitude REAL
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER NOT NULL PRIMARY KEY,
	topic TEXT NOT NULL DEFAULT '',
	sender INTEGER NOT NULL,
	receiver INTEGER NOT NULL DEFAULT 0,
	physical_sender INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	rssi REAL NOT NULL DEFAULT 0,
	snr REAL NOT NULL DEFAULT 0,
	hops_away INTEGER NOT NULL DEFAULT 0,
	type TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);

CREATE TABLE IF NOT EXISTS neighbors (
	node_id INTEGER NOT NULL,
	neighbor_id INTEGER NOT NULL,
	snr REAL NOT NULL DEFAULT 0,
	timestamp INTEGER NOT NULL,
	PRIMARY KEY (node_id, neighbor_id, timestamp)
);
CREATE INDEX IF NOT EXISTS idx_neighbors_timestamp ON neighbors(timestamp);

CREATE TABLE IF NOT EXISTS traceroutes (
	packet_id INTEGER NOT NULL,
	hop_index INTEGER NOT NULL,
	from_node INTEGER NOT NULL,
	to_node INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	PRIMARY KEY (packet_id, hop_index)
);
CREATE INDEX IF NOT EXISTS idx_traceroutes_timestamp ON traceroutes(timestamp);
`

const (
	writeAttempts = 3
	writeBackoff  = 250 * time.Millisecond
)

type sqliteStore struct {
	db *sql.DB

	// One logical writer: every mutation goes through this lock, readers
	// bypass it under SQLite's WAL snapshot isolation.
	writeMu sync.Mutex
}

// NewStore opens (and if needed creates) the SQLite store at path. Schema
// creation is idempotent and runs on every open.
func NewStore(path string) (Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &sqliteStore{db: sqlDB}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// write serializes mutations and retries transient failures a bounded
// number of times before surfacing the error.
func (s *sqliteStore) write(ctx context.Context, fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(writeBackoff):
		}
	}

	return fmt.Errorf("store write failed after %d attempts: %w", writeAttempts, err)
}

func (s *sqliteStore) InsertMessage(ctx context.Context, m Message) error {
	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO messages
			 (id, topic, sender, receiver, physical_sender, timestamp, rssi, snr, hops_away, type)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Topic, m.Sender, m.Receiver, m.PhysicalSender,
			m.Timestamp, m.RSSI, m.SNR, m.HopsAway, m.Type)
		return err
	})
}

func (s *sqliteStore) UpsertNode(ctx context.Context, n Node) error {
	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO nodes (id, longname, shortname, hardware, role, last_seen, latitude, longitude)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				longname  = CASE WHEN excluded.longname  <> '' THEN excluded.longname  ELSE nodes.longname  END,
				shortname = CASE WHEN excluded.shortname <> '' THEN excluded.shortname ELSE nodes.shortname END,
				hardware  = CASE WHEN excluded.hardware  <> 0  THEN excluded.hardware  ELSE nodes.hardware  END,
				role      = CASE WHEN excluded.role      <> '' THEN excluded.role      ELSE nodes.role      END,
				latitude  = COALESCE(excluded.latitude,  nodes.latitude),
				longitude = COALESCE(excluded.longitude, nodes.longitude),
				last_seen = MAX(COALESCE(nodes.last_seen, 0), COALESCE(excluded.last_seen, 0))`,
			n.ID, n.LongName, n.ShortName, n.Hardware, n.Role, n.LastSeen, n.Latitude, n.Longitude)
		return err
	})
}

func (s *sqliteStore) InsertNeighborReport(ctx context.Context, r NeighborReport) error {
	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO neighbors (node_id, neighbor_id, snr, timestamp)
			 VALUES (?, ?, ?, ?)`,
			r.NodeID, r.NeighborID, r.SNR, r.Timestamp)
		return err
	})
}

func (s *sqliteStore) InsertTraceroute(ctx context.Context, t Traceroute) error {
	return s.write(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for i := 0; i+1 < len(t.Route); i++ {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO traceroutes (packet_id, hop_index, from_node, to_node, timestamp)
				 VALUES (?, ?, ?, ?, ?)`,
				t.PacketID, int64(i), t.Route[i], t.Route[i+1], t.Timestamp); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
}

func (s *sqliteStore) QueryMessages(ctx context.Context, start, end int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, sender, receiver, physical_sender, timestamp, rssi, snr, hops_away, type
		 FROM messages WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var ret []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Sender, &m.Receiver, &m.PhysicalSender,
			&m.Timestamp, &m.RSSI, &m.SNR, &m.HopsAway, &m.Type); err != nil {
			return nil, err
		}
		ret = append(ret, m)
	}

	return ret, rows.Err()
}

func (s *sqliteStore) QueryNeighborReports(ctx context.Context, start, end int64) ([]NeighborReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, neighbor_id, snr, timestamp
		 FROM neighbors WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("querying neighbors: %w", err)
	}
	defer rows.Close()

	var ret []NeighborReport
	for rows.Next() {
		var r NeighborReport
		if err := rows.Scan(&r.NodeID, &r.NeighborID, &r.SNR, &r.Timestamp); err != nil {
			return nil, err
		}
		ret = append(ret, r)
	}

	return ret, rows.Err()
}

func (s *sqliteStore) QueryTracerouteHops(ctx context.Context, start, end int64) ([]TracerouteHop, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT packet_id, hop_index, from_node, to_node, timestamp
		 FROM traceroutes WHERE timestamp >= ? AND timestamp <= ?
		 ORDER BY timestamp, packet_id, hop_index`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("querying traceroutes: %w", err)
	}
	defer rows.Close()

	var ret []TracerouteHop
	for rows.Next() {
		var h TracerouteHop
		if err := rows.Scan(&h.PacketID, &h.HopIndex, &h.FromNode, &h.ToNode, &h.Timestamp); err != nil {
			return nil, err
		}
		ret = append(ret, h)
	}

	return ret, rows.Err()
}

func (s *sqliteStore) GetNodes(ctx context.Context) (map[int64]Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, longname, shortname, hardware, role, COALESCE(last_seen, 0), latitude, longitude
		 FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	ret := make(map[int64]Node)
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.LongName, &n.ShortName, &n.Hardware, &n.Role,
			&n.LastSeen, &n.Latitude, &n.Longitude); err != nil {
			return nil, err
		}
		ret[n.ID] = n
	}

	return ret, rows.Err()
}
