package rsvp

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

// completeResponse satisfies every rule of the V1 schema.
func completeResponse() Response {
	return Response{
		Attendance:              AttendanceYes,
		AccommodationManagement: AccommodationManaged,
		NightsStaying:           []NightOption{NightFriday, NightSaturday},
		RoomSharing:             "Juan Pérez",
		TransportationNeeds:     []TransportationNeed{TransportFindRide},
		MainCoursePreference:    CourseFish,
	}
}

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(&SubmissionRecord{}, &SubmissionChange{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, clock func() time.Time) *Service {
	t.Helper()
	if clock == nil {
		clock = (&stepClock{now: time.Unix(1767000000, 0).UTC(), step: time.Second}).Now
	}
	service, err := NewService(ServiceConfig{
		Database:   openTestDatabase(t),
		Clock:      clock,
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}
