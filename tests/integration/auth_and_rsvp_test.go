package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/marismas/boda/backend/internal/auth"
	"github.com/marismas/boda/backend/internal/rsvp"
	"github.com/marismas/boda/backend/internal/server"
	"github.com/marismas/boda/backend/internal/users"
)

const (
	backendSigningSecret = "integration-secret"
	backendIssuer        = "boda-backend"
	backendAudience      = "boda-clients"
	adminKey             = "integration-admin-key"
	guestSubject         = "google-subject-abc"
	jsonContentType      = "application/json"
)

type stubGoogleVerifier struct {
	claims auth.GoogleClaims
}

func (v *stubGoogleVerifier) Verify(_ context.Context, _ string) (auth.GoogleClaims, error) {
	return v.claims, nil
}

func TestAuthAndRSVPFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:integration?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	if err := db.AutoMigrate(&rsvp.SubmissionRecord{}, &rsvp.SubmissionChange{}, &users.Identity{}); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	rsvpService, err := rsvp.NewService(rsvp.ServiceConfig{
		Database:   db,
		IDProvider: rsvp.NewUUIDProvider(),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build rsvp service: %v", err)
	}
	identityService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build identity service: %v", err)
	}
	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(backendSigningSecret),
		Issuer:        backendIssuer,
		Audience:      backendAudience,
		TokenTTL:      time.Hour,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		GoogleVerifier: &stubGoogleVerifier{claims: auth.GoogleClaims{
			Subject:     guestSubject,
			Email:       "ana@example.com",
			DisplayName: "Ana García",
		}},
		TokenManager: tokenIssuer,
		Identities:   identityService,
		RSVPService:  rsvpService,
		AdminKey:     adminKey,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	client := testServer.Client()

	// Sign in with the (stubbed) Google token and collect the backend token.
	authBody := mustEncode(testContext, map[string]any{"id_token": "stub-google-token"})
	authResponse, err := client.Post(testServer.URL+"/auth/google", jsonContentType, bytes.NewReader(authBody))
	if err != nil {
		testContext.Fatalf("auth request failed: %v", err)
	}
	authPayload := mustDecode(testContext, authResponse)
	if authResponse.StatusCode != http.StatusOK {
		testContext.Fatalf("expected 200 from auth, got %d: %v", authResponse.StatusCode, authPayload)
	}
	accessToken, _ := authPayload["access_token"].(string)
	if accessToken == "" {
		testContext.Fatalf("expected an access token, got %v", authPayload)
	}

	// A fresh guest has no submission yet.
	getResponse := mustDo(testContext, client, http.MethodGet, testServer.URL+"/rsvp", accessToken, nil)
	if getResponse.StatusCode != http.StatusNoContent {
		testContext.Fatalf("expected 204 before any save, got %d", getResponse.StatusCode)
	}
	getResponse.Body.Close()

	// Save a partial draft.
	draftBody := mustEncode(testContext, map[string]any{"attendance": "yes", "roomSharing": "Juan Pérez"})
	draftResponse := mustDo(testContext, client, http.MethodPut, testServer.URL+"/rsvp", accessToken, draftBody)
	draftPayload := mustDecode(testContext, draftResponse)
	if draftResponse.StatusCode != http.StatusOK {
		testContext.Fatalf("expected 200 from draft save, got %d: %v", draftResponse.StatusCode, draftPayload)
	}
	if draftPayload["version"] != float64(1) || draftPayload["isSubmitted"] != false {
		testContext.Fatalf("expected draft version 1, got %v", draftPayload)
	}

	// An incomplete final submission is refused before persistence.
	incompleteResponse := mustDo(testContext, client, http.MethodPost, testServer.URL+"/rsvp/submit", accessToken, draftBody)
	if incompleteResponse.StatusCode != http.StatusUnprocessableEntity {
		testContext.Fatalf("expected 422 for an incomplete submit, got %d", incompleteResponse.StatusCode)
	}
	incompleteResponse.Body.Close()

	// Submitting the complete form merges over the stored draft.
	submitBody := mustEncode(testContext, map[string]any{
		"attendance":              "yes",
		"accommodationManagement": "yes",
		"nightsStaying":           []string{"friday", "saturday"},
		"roomSharing":             "Juan Pérez",
		"transportationNeeds":     []string{"no_help"},
		"mainCoursePreference":    "fish",
	})
	submitResponse := mustDo(testContext, client, http.MethodPost, testServer.URL+"/rsvp/submit", accessToken, submitBody)
	submitPayload := mustDecode(testContext, submitResponse)
	if submitResponse.StatusCode != http.StatusOK {
		testContext.Fatalf("expected 200 from submit, got %d: %v", submitResponse.StatusCode, submitPayload)
	}
	if submitPayload["isSubmitted"] != true || submitPayload["version"] != float64(2) {
		testContext.Fatalf("expected submitted version 2, got %v", submitPayload)
	}
	if submitPayload["userId"] != guestSubject {
		testContext.Fatalf("expected the canonical guest id, got %v", submitPayload["userId"])
	}
	if submitPayload["userEmail"] != "ana@example.com" {
		testContext.Fatalf("expected the denormalized email, got %v", submitPayload["userEmail"])
	}

	// The stored envelope reflects the final answers.
	finalResponse := mustDo(testContext, client, http.MethodGet, testServer.URL+"/rsvp", accessToken, nil)
	finalPayload := mustDecode(testContext, finalResponse)
	if finalResponse.StatusCode != http.StatusOK {
		testContext.Fatalf("expected 200, got %d", finalResponse.StatusCode)
	}
	responses, _ := finalPayload["responses"].(map[string]any)
	if responses["mainCoursePreference"] != "fish" || responses["roomSharing"] != "Juan Pérez" {
		testContext.Fatalf("unexpected stored responses: %v", responses)
	}

	// The admin surface sees the aggregate.
	statsRequest, err := http.NewRequest(http.MethodGet, testServer.URL+"/admin/rsvps/stats", nil)
	if err != nil {
		testContext.Fatalf("failed to build stats request: %v", err)
	}
	statsRequest.Header.Set("X-Admin-Key", adminKey)
	statsResponse, err := client.Do(statsRequest)
	if err != nil {
		testContext.Fatalf("stats request failed: %v", err)
	}
	statsPayload := mustDecode(testContext, statsResponse)
	if statsResponse.StatusCode != http.StatusOK {
		testContext.Fatalf("expected 200 from stats, got %d", statsResponse.StatusCode)
	}
	if statsPayload["totalResponses"] != float64(1) || statsPayload["attending"] != float64(1) || statsPayload["submitted"] != float64(1) {
		testContext.Fatalf("unexpected statistics: %v", statsPayload)
	}
}

func mustEncode(testContext *testing.T, payload any) []byte {
	testContext.Helper()
	encoded, err := json.Marshal(payload)
	if err != nil {
		testContext.Fatalf("failed to encode payload: %v", err)
	}
	return encoded
}

func mustDecode(testContext *testing.T, response *http.Response) map[string]any {
	testContext.Helper()
	defer response.Body.Close()
	decoded := make(map[string]any)
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		testContext.Fatalf("failed to decode response: %v", err)
	}
	return decoded
}

func mustDo(testContext *testing.T, client *http.Client, method, url, token string, body []byte) *http.Response {
	testContext.Helper()
	request, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	request.Header.Set("Authorization", "Bearer "+token)
	response, err := client.Do(request)
	if err != nil {
		testContext.Fatalf("request failed: %v", err)
	}
	return response
}
