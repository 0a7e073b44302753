package attendance

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"time"

	"hostel/internal/allottee"
	"hostel/internal/apperr"
)

// Status is a daily presence state.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// Record is one allottee's attendance for one calendar day. Day is
// truncated to midnight UTC; (AllotteeID, Day) is unique.
type Record struct {
	ID         string    `json:"id"`
	AllotteeID string    `json:"alloteeId"`
	Day        time.Time `json:"date"`
	Status     Status    `json:"status"`
	MarkedBy   string    `json:"markedBy"`
	Remarks    string    `json:"remarks"`
}

// Entry is one item of a batch submission.
type Entry struct {
	AllotteeID string `json:"alloteeId"`
	Status     Status `json:"status"`
	Remarks    string `json:"remarks"`
}

// EntryResult reports the outcome for a single batch item.
type EntryResult struct {
	AllotteeID string  `json:"alloteeId"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
	Attendance *Record `json:"attendance,omitempty"`
}

// BatchResult is the outcome of a batch submission.
type BatchResult struct {
	Day     time.Time     `json:"date"`
	Results []EntryResult `json:"results"`
}

// DayEntry joins an allottee with their record for a day, if any.
type DayEntry struct {
	Allottee   allottee.Allottee `json:"allotee"`
	Attendance *Record           `json:"attendance"`
}

// Stats summarizes today's attendance.
type Stats struct {
	Total          int `json:"total"`
	Present        int `json:"present"`
	Absent         int `json:"absent"`
	NotMarked      int `json:"notMarked"`
	AttendanceRate int `json:"attendanceRate"`
}

// Repository is the persistence contract for attendance records.
type Repository interface {
	Upsert(ctx context.Context, rec Record) (Record, error)
	ListForDay(ctx context.Context, day time.Time) ([]Record, error)
	ListAllottees(ctx context.Context) ([]allottee.Allottee, error)
	CountAllottees(ctx context.Context) (int, error)
	AllotteeExists(ctx context.Context, id string) (bool, error)
}

// Admins answers whether an actor is a recognized admin.
type Admins interface {
	AdminExists(ctx context.Context, email string) (bool, error)
}

// Cache is a small read-through cache for stats. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Service records and reads daily attendance with an
// at-most-one-record-per-(allottee, day) guarantee.
type Service struct {
	repo     Repository
	admins   Admins
	cache    Cache
	cacheTTL time.Duration
	now      func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo Repository, admins Admins, cache Cache, cacheTTL time.Duration) *Service {
	return &Service{repo: repo, admins: admins, cache: cache, cacheTTL: cacheTTL, now: time.Now}
}

// Day truncates a timestamp to midnight UTC, the granularity attendance
// is keyed on.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RecordBatch upserts one record per entry for the given day. Entries
// are processed independently: a bad allottee id fails that entry and
// the batch continues.
func (s *Service) RecordBatch(ctx context.Context, entries []Entry, adminEmail string, day time.Time) (BatchResult, error) {
	if entries == nil {
		return BatchResult{}, apperr.Validation("records must be an array")
	}
	ok, err := s.admins.AdminExists(ctx, adminEmail)
	if err != nil {
		return BatchResult{}, err
	}
	if !ok {
		return BatchResult{}, apperr.Unauthorized("unauthorized, admin not found")
	}

	if day.IsZero() {
		day = s.now()
	}
	day = Day(day)

	result := BatchResult{Day: day, Results: make([]EntryResult, 0, len(entries))}
	for _, e := range entries {
		if e.Status != StatusPresent && e.Status != StatusAbsent {
			result.Results = append(result.Results, EntryResult{
				AllotteeID: e.AllotteeID, Error: "status must be present or absent",
			})
			continue
		}
		exists, err := s.repo.AllotteeExists(ctx, e.AllotteeID)
		if err != nil {
			return BatchResult{}, err
		}
		if !exists {
			result.Results = append(result.Results, EntryResult{
				AllotteeID: e.AllotteeID, Error: "allottee not found",
			})
			continue
		}
		rec, err := s.repo.Upsert(ctx, Record{
			AllotteeID: e.AllotteeID,
			Day:        day,
			Status:     e.Status,
			MarkedBy:   adminEmail,
			Remarks:    e.Remarks,
		})
		if err != nil {
			result.Results = append(result.Results, EntryResult{AllotteeID: e.AllotteeID, Error: err.Error()})
			continue
		}
		result.Results = append(result.Results, EntryResult{AllotteeID: e.AllotteeID, Success: true, Attendance: &rec})
	}

	s.invalidateStats(ctx, day)
	return result, nil
}

// ForDay returns every allottee joined with their record for the day.
// The result always has one entry per allottee; unmarked allottees get
// a nil attendance.
func (s *Service) ForDay(ctx context.Context, day time.Time) (time.Time, []DayEntry, error) {
	if day.IsZero() {
		day = s.now()
	}
	day = Day(day)

	records, err := s.repo.ListForDay(ctx, day)
	if err != nil {
		return time.Time{}, nil, err
	}
	byAllottee := make(map[string]Record, len(records))
	for _, rec := range records {
		byAllottee[rec.AllotteeID] = rec
	}

	allottees, err := s.repo.ListAllottees(ctx)
	if err != nil {
		return time.Time{}, nil, err
	}
	entries := make([]DayEntry, 0, len(allottees))
	for _, a := range allottees {
		entry := DayEntry{Allottee: a}
		if rec, ok := byAllottee[a.ID]; ok {
			entry.Attendance = &rec
		}
		entries = append(entries, entry)
	}
	return day, entries, nil
}

// TodayStats computes today's counts and attendance rate. The rate is 0
// when no allottees exist.
func (s *Service) TodayStats(ctx context.Context) (Stats, error) {
	day := Day(s.now())
	key := statsKey(day)

	if s.cache != nil {
		if val, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var stats Stats
			if err := json.Unmarshal([]byte(val), &stats); err == nil {
				return stats, nil
			}
		}
	}

	total, err := s.repo.CountAllottees(ctx)
	if err != nil {
		return Stats{}, err
	}
	records, err := s.repo.ListForDay(ctx, day)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Total: total}
	for _, rec := range records {
		switch rec.Status {
		case StatusPresent:
			stats.Present++
		case StatusAbsent:
			stats.Absent++
		}
	}
	stats.NotMarked = total - (stats.Present + stats.Absent)
	if total > 0 {
		stats.AttendanceRate = int(math.Round(float64(stats.Present) / float64(total) * 100))
	}

	if s.cache != nil {
		if payload, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, key, string(payload), s.cacheTTL); err != nil {
				log.Printf("stats cache set failed: %v", err)
			}
		}
	}
	return stats, nil
}

func (s *Service) invalidateStats(ctx context.Context, day time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statsKey(day)); err != nil {
		log.Printf("stats cache invalidate failed: %v", err)
	}
}

func statsKey(day time.Time) string {
	return "attendance:stats:" + day.Format("2006-01-02")
}
