package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dtchat/chattime"
	"github.com/opd-ai/dtchat/message"
	"github.com/opd-ai/dtchat/transport"
)

// SQLiteStore persists messages in a SQLite database so a node's timeline
// survives restarts. Peers and rooms remain constructor-supplied and
// immutable, matching MemoryStore.
type SQLiteStore struct {
	db        *sql.DB
	localPeer Peer
	peers     map[string]Peer
	rooms     map[string]Room
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	uuid              TEXT PRIMARY KEY,
	sender_uuid       TEXT NOT NULL,
	room_uuid         TEXT NOT NULL,
	kind              TEXT NOT NULL,
	text              TEXT NOT NULL DEFAULT '',
	file_name         TEXT NOT NULL DEFAULT '',
	file_data         BLOB,
	source_endpoint   TEXT NOT NULL,
	send_time         INTEGER NOT NULL,
	send_completed    INTEGER,
	predicted_arrival INTEGER,
	receive_time      INTEGER,
	status            INTEGER NOT NULL,
	seq               INTEGER
);
CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_uuid);
`

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, localPeer Peer, peers []Peer, rooms []Room) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		localPeer: localPeer,
		peers:     make(map[string]Peer, len(peers)),
		rooms:     make(map[string]Room, len(rooms)),
	}
	for _, p := range peers {
		s.peers[p.UUID] = p
	}
	for _, r := range rooms {
		s.rooms[r.UUID] = r
	}
	return s, nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LocalPeer implements Store.
func (s *SQLiteStore) LocalPeer() Peer { return s.localPeer }

// OtherPeers implements Store.
func (s *SQLiteStore) OtherPeers() map[string]Peer {
	out := make(map[string]Peer, len(s.peers))
	for k, v := range s.peers {
		out[k] = v
	}
	return out
}

// Rooms implements Store.
func (s *SQLiteStore) Rooms() map[string]Room {
	out := make(map[string]Room, len(s.rooms))
	for k, v := range s.rooms {
		out[k] = v
	}
	return out
}

// AddMessage implements Store. Duplicate uuids are rejected.
func (s *SQLiteStore) AddMessage(m *message.ChatMessage) bool {
	kind := "text"
	text := ""
	fileName := ""
	var fileData []byte
	switch c := m.Content.(type) {
	case message.Text:
		text = c.Text
	case message.File:
		kind = "file"
		fileName = c.Name
		fileData = c.Data
	}

	_, err := s.db.Exec(
		`INSERT INTO messages
		 (uuid, sender_uuid, room_uuid, kind, text, file_name, file_data,
		  source_endpoint, send_time, send_completed, predicted_arrival,
		  receive_time, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UUID, m.SenderUUID, m.RoomUUID, kind, text, fileName, fileData,
		m.SourceEndpoint.String(), m.SendTime.UnixMilli(),
		nullableMilli(m.SendCompleted), nullableMilli(m.PredictedArrival),
		nullableMilli(m.ReceiveTime), m.Status,
	)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"uuid":  m.UUID,
			"error": err,
		}).Warn("message insert rejected")
		return false
	}
	return true
}

// MarkAs implements Store.
func (s *SQLiteStore) MarkAs(uuid string, intent MarkIntent) *message.ChatMessage {
	var res sql.Result
	var err error
	switch intent.kind {
	case markAcked:
		res, err = s.db.Exec(
			`UPDATE messages SET receive_time = ?, status = ? WHERE uuid = ?`,
			intent.at.UnixMilli(), message.StatusReceivedByPeer, uuid)
	case markSent:
		// An ACK may have landed before the transport's completion callback:
		// ReceivedByPeer stays put, only the completion time is recorded.
		res, err = s.db.Exec(
			`UPDATE messages SET send_completed = ?,
			        status = CASE WHEN status = ? THEN status ELSE ? END
			 WHERE uuid = ?`,
			intent.at.UnixMilli(), message.StatusReceivedByPeer, message.StatusSent, uuid)
	case markFailed:
		res, err = s.db.Exec(
			`UPDATE messages SET status = ? WHERE uuid = ?`,
			message.StatusFailed, uuid)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{"uuid": uuid, "error": err}).Warn("status update failed")
		return nil
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	return s.getMessage(uuid)
}

// LastMessages implements Store.
func (s *SQLiteStore) LastMessages(n int) []*message.ChatMessage {
	rows, err := s.db.Query(
		`SELECT * FROM (
			SELECT `+messageColumns+` FROM messages ORDER BY rowid DESC LIMIT ?
		 ) ORDER BY rowid ASC`, n)
	if err != nil {
		logrus.WithField("error", err).Warn("message query failed")
		return nil
	}
	defer rows.Close()
	return scanMessages(rows)
}

// AllMessages implements Store.
func (s *SQLiteStore) AllMessages() []*message.ChatMessage {
	rows, err := s.db.Query(
		`SELECT ` + messageColumns + ` FROM messages ORDER BY rowid ASC`)
	if err != nil {
		logrus.WithField("error", err).Warn("message query failed")
		return nil
	}
	defer rows.Close()
	return scanMessages(rows)
}

const messageColumns = `rowid, uuid, sender_uuid, room_uuid, kind, text, file_name,
	file_data, source_endpoint, send_time, send_completed, predicted_arrival,
	receive_time, status`

func (s *SQLiteStore) getMessage(uuid string) *message.ChatMessage {
	rows, err := s.db.Query(
		`SELECT `+messageColumns+` FROM messages WHERE uuid = ?`, uuid)
	if err != nil {
		return nil
	}
	defer rows.Close()
	msgs := scanMessages(rows)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[0]
}

func scanMessages(rows *sql.Rows) []*message.ChatMessage {
	var out []*message.ChatMessage
	for rows.Next() {
		var (
			rowid                              int64
			uuid, sender, room, kind           string
			text, fileName                     string
			fileData                           []byte
			sourceEndpoint                     string
			sendTime                           int64
			sendCompleted, predicted, received sql.NullInt64
			status                             uint8
		)
		if err := rows.Scan(&rowid, &uuid, &sender, &room, &kind, &text, &fileName,
			&fileData, &sourceEndpoint, &sendTime, &sendCompleted, &predicted,
			&received, &status); err != nil {
			logrus.WithField("error", err).Warn("message row scan failed")
			continue
		}

		m := &message.ChatMessage{
			UUID:       uuid,
			SenderUUID: sender,
			RoomUUID:   room,
			Status:     message.Status(status),
		}
		if kind == "file" {
			m.Content = message.File{Name: fileName, Data: fileData}
		} else {
			m.Content = message.Text{Text: text}
		}
		if ep, err := transport.ParseEndpoint(sourceEndpoint); err == nil {
			m.SourceEndpoint = ep
		}
		if t, ok := chattime.FromUnixMilli(sendTime); ok {
			m.SendTime = t
		}
		m.SendCompleted = milliOrZero(sendCompleted)
		m.PredictedArrival = milliOrZero(predicted)
		m.ReceiveTime = milliOrZero(received)
		out = append(out, m)
	}
	return out
}

func nullableMilli(t chattime.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func milliOrZero(v sql.NullInt64) chattime.Time {
	if !v.Valid {
		return chattime.Time{}
	}
	t, _ := chattime.FromUnixMilli(v.Int64)
	return t
}
