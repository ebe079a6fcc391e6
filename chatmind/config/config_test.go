package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	// Save original directory
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	// Create temporary directory for testing
	tempDir, err := os.MkdirTemp("", "chatmind-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir

	// Change to temp directory
	err = os.Chdir(tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	// Change back to original directory
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}

	// Clean up temporary directory
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	// Load config without config file (should use defaults)
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	// Test default values
	assert.Equal(suite.T(), "memory", cfg.Store.Backend)
	assert.Equal(suite.T(), 20, cfg.Store.MaxHistoryLength)
	assert.Equal(suite.T(), 30*time.Minute, cfg.Store.Timeout)
	assert.Equal(suite.T(), 1000, cfg.Store.Capacity)
	assert.Equal(suite.T(), 5*time.Minute, cfg.Store.SweepInterval)
	assert.True(suite.T(), cfg.Store.LongTermMemory)
	assert.Equal(suite.T(), 5*time.Second, cfg.Harness.RequeryTimeout)
	assert.True(suite.T(), cfg.Harness.EnableTracing)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	// Create a test config file
	configContent := `
store:
  backend: "libsql"
  dsn: "test.db"
  max_history_length: 10
  timeout: "10m"
harness:
  requery_timeout: "2s"
`
	configPath := filepath.Join(suite.tempDir, "config.yaml")
	err := os.WriteFile(configPath, []byte(configContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configPath)
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), "libsql", cfg.Store.Backend)
	assert.Equal(suite.T(), "test.db", cfg.Store.DSN)
	assert.Equal(suite.T(), 10, cfg.Store.MaxHistoryLength)
	assert.Equal(suite.T(), 10*time.Minute, cfg.Store.Timeout)
	assert.Equal(suite.T(), 2*time.Second, cfg.Harness.RequeryTimeout)

	// Unset keys keep their defaults
	assert.Equal(suite.T(), 1000, cfg.Store.Capacity)
}
