// Package tracking records which parts of a video were watched. Each seek
// closes the current view period and opens a new one at the seek target.
package tracking

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ViewPeriod is one continuous stretch of viewing, in video seconds.
type ViewPeriod struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index;size:36"`
	Video     string
	From      float64 `gorm:"column:from_time"`
	To        float64 `gorm:"column:to_time"`
	Open      bool    `gorm:"column:is_open"`
	StartedAt time.Time
	EndedAt   *time.Time
}

// OpenDB opens the sqlite store at path. An empty path gives a private
// in-memory database.
func OpenDB(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open tracking db: %w", err)
	}
	if err := db.AutoMigrate(&ViewPeriod{}); err != nil {
		return nil, fmt.Errorf("migrate tracking db: %w", err)
	}
	return db, nil
}

// Tracker writes view periods for one viewing session at a time.
type Tracker struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time

	sessionID string
	video     string
	open      *ViewPeriod
}

func New(db *gorm.DB, log zerolog.Logger) *Tracker {
	return &Tracker{
		db:  db,
		log: log.With().Str("component", "tracking").Logger(),
		now: time.Now,
	}
}

// Begin starts a viewing session of video and returns its id. A session
// already in progress is flushed at its last known position.
func (t *Tracker) Begin(video string, at float64) string {
	if t.open != nil {
		t.Flush(t.open.From)
	}
	t.sessionID = uuid.NewString()
	t.video = video
	t.start(at)
	return t.sessionID
}

func (t *Tracker) SessionID() string { return t.sessionID }

// StartNewPeriod closes the open period at from and opens a new one at to.
func (t *Tracker) StartNewPeriod(from, to float64) {
	if t.sessionID == "" {
		t.log.Debug().Msg("period boundary outside a session ignored")
		return
	}
	t.close(from)
	t.start(to)
}

// Flush closes the open period at the given video time.
func (t *Tracker) Flush(at float64) {
	t.close(at)
}

func (t *Tracker) start(at float64) {
	p := &ViewPeriod{
		SessionID: t.sessionID,
		Video:     t.video,
		From:      at,
		To:        at,
		Open:      true,
		StartedAt: t.now(),
	}
	if err := t.db.Create(p).Error; err != nil {
		t.log.Warn().Err(err).Msg("store view period")
		return
	}
	t.open = p
}

func (t *Tracker) close(at float64) {
	if t.open == nil {
		return
	}
	ended := t.now()
	err := t.db.Model(t.open).Updates(map[string]any{
		"to_time":  at,
		"is_open":  false,
		"ended_at": ended,
	}).Error
	if err != nil {
		t.log.Warn().Err(err).Msg("close view period")
	}
	t.open = nil
}

// Periods returns the periods of a session in creation order.
func (t *Tracker) Periods(sessionID string) ([]ViewPeriod, error) {
	var periods []ViewPeriod
	err := t.db.Where("session_id = ?", sessionID).Order("id").Find(&periods).Error
	return periods, err
}

// Watched sums the length of the closed periods of a session.
func (t *Tracker) Watched(sessionID string) (float64, error) {
	periods, err := t.Periods(sessionID)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, p := range periods {
		if !p.Open && p.To > p.From {
			total += p.To - p.From
		}
	}
	return total, nil
}
