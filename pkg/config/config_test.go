package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, AuthProviderLocal, cfg.Auth.Provider)
	assert.Equal(t, 15*time.Second, cfg.Classifier.Timeout)
	assert.True(t, cfg.Classifier.Fallback)
	assert.Equal(t, int64(20*1024*1024), cfg.Upload.MaxFileSizeBytes)
	assert.Contains(t, cfg.Upload.AllowedMIMEs, "application/pdf")
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_PROVIDER", "FIREBASE")
	t.Setenv("FIREBASE_PROJECT_ID", "ousl-print")
	t.Setenv("CLASSIFIER_URL", "http://classifier:9000/")
	t.Setenv("EXECUTOR_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, AuthProviderFirebase, cfg.Auth.Provider)
	assert.Equal(t, "ousl-print", cfg.Auth.FirebaseProjectID)
	assert.Equal(t, "http://classifier:9000", cfg.Classifier.URL)
	assert.Equal(t, 3*time.Second, cfg.Executor.Timeout)
}

func TestPolicyLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, PolicyConfig{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, time.UTC, PolicyConfig{}.Location())
}

func TestParseDurationAndSplit(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
	assert.Nil(t, splitAndTrim(""))
}
