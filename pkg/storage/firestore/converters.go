package firestore

import (
	"time"

	"github.com/skycast/server/pkg/types"
)

// Helper to safely get string from map
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Helper to safely get bool from map
func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Helper to safely get int64 from map (Firestore stores numbers as int64/float64)
func getInt64(m map[string]interface{}, key string) int64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int64:
			return n
		case int:
			return int64(n)
		case float64:
			return int64(n)
		}
	}
	return 0
}

// Helper to safely get time from map (handles time.Time from Firestore)
func getTime(m map[string]interface{}, key string) time.Time {
	if v, ok := m[key]; ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key]; ok {
		if sub, ok := v.(map[string]interface{}); ok {
			return sub
		}
	}
	return nil
}

// --- Account Converters ---

func AccountToFirestore(a *types.Account) map[string]interface{} {
	m := map[string]interface{}{
		"athlete_id":       a.AthleteID,
		"access_token":     a.AccessToken,
		"refresh_token":    a.RefreshToken,
		"token_expires_at": a.TokenExpiresAt,
		"weather_enabled":  a.WeatherEnabled,
		"preferences": map[string]interface{}{
			"units":           a.Preferences.Units,
			"include_details": a.Preferences.IncludeDetails,
			"placement":       a.Preferences.Placement,
		},
	}
	if !a.CreatedAt.IsZero() {
		m["created_at"] = a.CreatedAt
	}
	return m
}

func FirestoreToAccount(m map[string]interface{}) *types.Account {
	a := &types.Account{
		AthleteID:      getInt64(m, "athlete_id"),
		AccessToken:    getString(m, "access_token"),
		RefreshToken:   getString(m, "refresh_token"),
		TokenExpiresAt: getTime(m, "token_expires_at"),
		WeatherEnabled: getBool(m, "weather_enabled"),
		CreatedAt:      getTime(m, "created_at"),
	}
	if prefs := getMap(m, "preferences"); prefs != nil {
		a.Preferences = types.WeatherPreferences{
			Units:          getString(prefs, "units"),
			IncludeDetails: getBool(prefs, "include_details"),
			Placement:      getString(prefs, "placement"),
		}
	}
	return a
}

// --- ExecutionRecord Converters ---

func ExecutionToFirestore(e *types.ExecutionRecord) map[string]interface{} {
	m := map[string]interface{}{
		"execution_id": e.ExecutionID,
		"service":      e.Service,
		"owner_id":     e.OwnerID,
		"trigger_type": e.TriggerType,
		"status":       e.Status,
		"started_at":   e.StartedAt,
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	if e.Outputs != nil {
		m["outputs"] = e.Outputs
	}
	if !e.FinishedAt.IsZero() {
		m["finished_at"] = e.FinishedAt
	}
	return m
}

func FirestoreToExecution(m map[string]interface{}) *types.ExecutionRecord {
	return &types.ExecutionRecord{
		ExecutionID: getString(m, "execution_id"),
		Service:     getString(m, "service"),
		OwnerID:     getString(m, "owner_id"),
		TriggerType: getString(m, "trigger_type"),
		Status:      getString(m, "status"),
		Error:       getString(m, "error"),
		Outputs:     getMap(m, "outputs"),
		StartedAt:   getTime(m, "started_at"),
		FinishedAt:  getTime(m, "finished_at"),
	}
}
