package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultMinTokenLifespanSeconds = 300

// IsRefreshNeeded reports whether the stored credential is too close to
// expiry. It is false when refresh is disabled or nothing is stored.
func IsRefreshNeeded(
	ctx context.Context,
	enabled bool,
	check FreshnessChecker,
	retrieve CredentialRetriever,
	key string,
	minLifespanSeconds int,
) (bool, error) {
	if !enabled {
		return false, nil
	}
	if retrieve == nil {
		return false, nil
	}
	credential, err := retrieve(ctx, key)
	if err != nil {
		return false, stageError(ErrStoreFailed, err)
	}
	if strings.TrimSpace(credential) == "" {
		return false, nil
	}
	if check == nil {
		check = CheckCredentialFreshness
	}
	fresh, err := check(credential, minLifespanSeconds)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// CheckCredentialFreshness decodes the credential as a JWT without verifying
// its signature and reports whether more than minLifespanSeconds remain
// before exp.
func CheckCredentialFreshness(credential string, minLifespanSeconds int) (bool, error) {
	return NewFreshnessChecker(time.Now)(credential, minLifespanSeconds)
}

func NewFreshnessChecker(now func() time.Time) FreshnessChecker {
	if now == nil {
		now = time.Now
	}
	return func(credential string, minLifespanSeconds int) (bool, error) {
		expiresAt, err := CredentialExpiry(credential)
		if err != nil {
			return false, err
		}
		remaining := int64(expiresAt.Sub(now()) / time.Second)
		return remaining > int64(minLifespanSeconds), nil
	}
}

// CredentialExpiry returns the exp claim of a JWT credential.
func CredentialExpiry(credential string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(credential), claims); err != nil {
		return time.Time{}, stageError(ErrCredentialDecode, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, stageError(ErrCredentialDecode, err)
	}
	if exp == nil {
		return time.Time{}, stageError(ErrCredentialDecode, errors.New("credential has no exp claim"))
	}
	return exp.Time, nil
}

func minLifespan(seconds int) int {
	if seconds <= 0 {
		return DefaultMinTokenLifespanSeconds
	}
	return seconds
}
