package handshake

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	challengeNonceLength = 32

	// DefaultChallengeWindow is how long a challenge stays acceptable
	DefaultChallengeWindow = 5 * time.Minute
)

// GenerateChallenge returns a fresh "<unix_seconds>-<nonce_hex>" challenge
func GenerateChallenge(now time.Time) (string, error) {
	nonce := make([]byte, challengeNonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate challenge nonce: %w", err)
	}
	return fmt.Sprintf("%d-%s", now.Unix(), hexutil.Encode(nonce)[2:]), nil
}

// ParseChallenge splits a challenge into its timestamp and nonce
func ParseChallenge(challenge string) (time.Time, []byte, error) {
	parts := strings.SplitN(challenge, "-", 2)
	if len(parts) != 2 {
		return time.Time{}, nil, fmt.Errorf("%w: invalid challenge format", types.ErrProtocolFormat)
	}

	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: invalid challenge timestamp: %v", types.ErrProtocolFormat, err)
	}

	nonce, err := hexutil.Decode("0x" + parts[1])
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: invalid challenge nonce: %v", types.ErrProtocolFormat, err)
	}
	if len(nonce) != challengeNonceLength {
		return time.Time{}, nil, fmt.Errorf("%w: challenge nonce must be %d bytes, got %d", types.ErrProtocolFormat, challengeNonceLength, len(nonce))
	}
	return time.Unix(ts, 0), nonce, nil
}
