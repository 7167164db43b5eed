package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

// KeySet verifies tokens against an issuer's published JWKS.
type KeySet struct {
	issuer string
	http   *http.Client
	now    func() time.Time

	mu   sync.RWMutex
	jwks *JWKS
	// kid -> converted key
	cache map[string]*rsa.PublicKey
}

func NewKeySet(issuerURL string, client *http.Client) *KeySet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySet{
		issuer: strings.TrimRight(issuerURL, "/"),
		http:   client,
		now:    time.Now,
		cache:  make(map[string]*rsa.PublicKey),
	}
}

// Refresh fetches the issuer's JWKS and drops converted keys.
func (k *KeySet) Refresh(ctx context.Context) error {
	jwksURL := fmt.Sprintf("%s/.well-known/jwks.json", k.issuer)
	slog.Debug("[AUTH] Fetching JWKS", "url", jwksURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := k.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	k.mu.Lock()
	k.jwks = &jwks
	k.cache = make(map[string]*rsa.PublicKey)
	k.mu.Unlock()

	slog.Info("[AUTH] JWKS loaded", "keys", len(jwks.Keys))
	return nil
}

// Verify validates a token's signature, issuer and expiry.
func (k *KeySet) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return nil, ErrTokenEmpty
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid not found in token header")
		}
		return k.publicKey(kid)
	}, jwt.WithTimeFunc(k.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Issuer != k.issuer {
		return nil, fmt.Errorf("invalid issuer: expected %s, got %s", k.issuer, claims.Issuer)
	}
	return claims, nil
}

func (k *KeySet) publicKey(kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	if key, ok := k.cache[kid]; ok {
		k.mu.RUnlock()
		return key, nil
	}
	jwks := k.jwks
	k.mu.RUnlock()

	if jwks == nil {
		return nil, errors.New("JWKS not initialized")
	}

	for _, jwk := range jwks.Keys {
		if jwk.Kid != kid {
			continue
		}
		key, err := jwkToPublicKey(jwk)
		if err != nil {
			return nil, err
		}
		k.mu.Lock()
		k.cache[kid] = key
		k.mu.Unlock()
		return key, nil
	}
	return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
}

// jwkToPublicKey converts JWK to RSA public key
func jwkToPublicKey(jwk JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
