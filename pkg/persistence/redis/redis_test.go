package redis

import (
	"os"
	"testing"

	"github.com/Layr-Labs/workorder-peering-go/pkg/logger"
	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence"
	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence/persistenceTest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise the tests are skipped.
func getTestRedisAddress(t *testing.T) string {
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}
	return addr
}

// requireRedis connects with a unique key prefix so runs never collide
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	cfg := &RedisConfig{
		Address:   getTestRedisAddress(t),
		DB:        15,
		KeyPrefix: "test-" + uuid.New().String() + ":",
	}

	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		t.Fatalf("Redis not available at %s: %v", cfg.Address, err)
	}
	return rp
}

func TestRedisPersistence(t *testing.T) {
	persistenceTest.RunSuite(t, func(t *testing.T) persistence.IPeeringPersistence {
		return requireRedis(t)
	})
}

func TestNewRedisPersistence_InvalidConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(nil, testLogger)
	assert.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	assert.Error(t, err)
}
