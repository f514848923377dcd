// Package archive persists chat messages on the server side. The client
// core never touches it; the devserver uses it so reconnecting clients can
// be served recent history.
package archive

import (
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"main/internal/schema"
)

// MessageRecord is the persisted form of a confirmed message.
type MessageRecord struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	ChatRoomID      int64     `gorm:"index"`
	SenderID        int64
	Content         string
	ClientRequestID string
	CreatedAt       time.Time
}

// TableName keeps the table name stable across gorm versions.
func (MessageRecord) TableName() string {
	return "messages"
}

// Store wraps the message archive database.
type Store struct {
	db *gorm.DB
}

// Open connects to PostgreSQL and migrates the schema.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("archive: empty dsn")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open archive database")
	}
	if err := db.AutoMigrate(&MessageRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate archive schema")
	}
	return &Store{db: db}, nil
}

// SaveMessage persists a message and returns its assigned server id.
func (s *Store) SaveMessage(msg schema.Message) (int64, error) {
	rec := MessageRecord{
		ChatRoomID:      msg.ChatRoomID,
		SenderID:        msg.SenderID,
		Content:         msg.Content,
		ClientRequestID: msg.ClientRequestID,
		CreatedAt:       msg.CreatedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return 0, errors.Wrap(err, "save message")
	}
	return rec.ID, nil
}

// RecentMessages returns the room's newest messages in chronological order.
func (s *Store) RecentMessages(roomID int64, limit int) ([]schema.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []MessageRecord
	err := s.db.
		Where("chat_room_id = ?", roomID).
		Order("id desc").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(err, "load recent messages")
	}
	out := make([]schema.Message, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		out = append(out, schema.Message{
			ID:              rec.ID,
			ChatRoomID:      rec.ChatRoomID,
			SenderID:        rec.SenderID,
			Content:         rec.Content,
			ClientRequestID: rec.ClientRequestID,
			CreatedAt:       rec.CreatedAt,
		})
	}
	return out, nil
}
