package users

import (
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/marismas/boda/backend/internal/auth"
)

func newTestService(t *testing.T) *Service {
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
	if err := db.AutoMigrate(&Identity{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func TestResolveGuestIDCreatesIdentityOnFirstSighting(t *testing.T) {
	service := newTestService(t)

	guestID, err := service.ResolveGuestID(ProviderGoogle, auth.GoogleClaims{
		Subject:     "subject-1",
		Email:       "ana@example.com",
		DisplayName: "Ana",
	})
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if guestID != "subject-1" {
		t.Fatalf("expected the subject as canonical guest id, got %q", guestID)
	}

	var identity Identity
	if err := service.db.Where("provider = ? AND subject = ?", ProviderGoogle, "subject-1").First(&identity).Error; err != nil {
		t.Fatalf("expected a stored identity: %v", err)
	}
	if identity.Email != "ana@example.com" || identity.DisplayName != "Ana" {
		t.Fatalf("expected profile fields to be stored, got %+v", identity)
	}
}

func TestResolveGuestIDIsStableAcrossSightings(t *testing.T) {
	service := newTestService(t)
	claims := auth.GoogleClaims{Subject: "subject-2", Email: "ana@example.com"}

	first, err := service.ResolveGuestID(ProviderGoogle, claims)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	second, err := service.ResolveGuestID(ProviderGoogle, claims)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if first != second {
		t.Fatalf("expected a stable guest id, got %q then %q", first, second)
	}

	var count int64
	if err := service.db.Model(&Identity{}).Count(&count).Error; err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one identity row, got %d", count)
	}
}

func TestResolveGuestIDRefreshesProfileFields(t *testing.T) {
	service := newTestService(t)

	if _, err := service.ResolveGuestID(ProviderGoogle, auth.GoogleClaims{Subject: "subject-3", Email: "old@example.com"}); err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if _, err := service.ResolveGuestID(ProviderGoogle, auth.GoogleClaims{
		Subject:     "subject-3",
		Email:       "new@example.com",
		DisplayName: "Ana García",
	}); err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}

	var identity Identity
	if err := service.db.Where("subject = ?", "subject-3").First(&identity).Error; err != nil {
		t.Fatalf("expected a stored identity: %v", err)
	}
	if identity.Email != "new@example.com" || identity.DisplayName != "Ana García" {
		t.Fatalf("expected refreshed profile fields, got %+v", identity)
	}
}

func TestResolveGuestIDRejectsMissingSubject(t *testing.T) {
	service := newTestService(t)

	if _, err := service.ResolveGuestID(ProviderGoogle, auth.GoogleClaims{Subject: "   "}); err == nil {
		t.Fatalf("expected an error for a blank subject")
	}
}

func TestResolveGuestIDDefaultsToGoogleProvider(t *testing.T) {
	service := newTestService(t)

	if _, err := service.ResolveGuestID("", auth.GoogleClaims{Subject: "subject-4"}); err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}

	var identity Identity
	if err := service.db.Where("subject = ?", "subject-4").First(&identity).Error; err != nil {
		t.Fatalf("expected a stored identity: %v", err)
	}
	if identity.Provider != ProviderGoogle {
		t.Fatalf("expected the google provider default, got %q", identity.Provider)
	}
}
