package transcript

import (
	"context"

	"github.com/interviewly/voicekit/internal/shared"
	"github.com/interviewly/voicekit/internal/wire"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Line{})
}

func (s *Store) Append(ctx context.Context, roomID string, line wire.TranscriptLine) error {
	return s.db.WithContext(ctx).Create(&Line{
		ID:      shared.NewID("line_"),
		RoomID:  roomID,
		Speaker: line.Speaker,
		Text:    line.Text,
	}).Error
}

// ListByRoom returns lines in arrival order.
func (s *Store) ListByRoom(ctx context.Context, roomID string, limit, offset int) ([]*Line, error) {
	var lines []*Line
	q := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Find(&lines).Error
	return lines, err
}

func (s *Store) DeleteByRoom(ctx context.Context, roomID string) error {
	result := s.db.WithContext(ctx).Delete(&Line{}, "room_id = ?", roomID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
