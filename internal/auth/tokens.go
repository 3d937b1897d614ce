package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Keys signs and verifies player tokens. The platform mints tokens out of
// band and hands them to game clients; this service only ever verifies.
// Construct one instance at startup and pass it where needed.
type Keys struct {
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	expire time.Duration
}

// NewKeys generates a fresh ed25519 pair. Outstanding tokens die with the
// process; use NewKeysFromSeed when tokens must survive restarts.
func NewKeys(expire time.Duration) (*Keys, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Keys{priv: priv, pub: pub, expire: expire}, nil
}

// NewKeysFromSeed derives the pair deterministically from a hex-encoded
// 32-byte seed.
func NewKeysFromSeed(hexSeed string, expire time.Duration) (*Keys, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Keys{priv: priv, pub: priv.Public().(ed25519.PublicKey), expire: expire}, nil
}

// CreatePlayerToken signs a token with "sub" = the decimal player id. A zero
// expire duration means no exp claim.
func (k *Keys) CreatePlayerToken(playerID int64) (string, error) {
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(playerID, 10),
	}
	if k.expire > 0 {
		claims["exp"] = time.Now().Add(k.expire).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(k.priv)
}

// VerifyPlayerToken checks signature and expiry and returns the player id
// from the "sub" claim.
func (k *Keys) VerifyPlayerToken(tokenString string) (int64, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return k.pub, nil
	})
	if err != nil {
		return 0, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return 0, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, fmt.Errorf("missing sub in jwt")
	}

	playerID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("jwt subject is not a player id: %w", err)
	}
	if playerID <= 0 {
		return 0, fmt.Errorf("jwt subject is not a valid player id: %d", playerID)
	}
	return playerID, nil
}
