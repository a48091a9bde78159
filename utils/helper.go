package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/statements_backend/config"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

func UniqueSlice[T comparable](input []T) []T {
	seen := make(map[T]bool)
	out := []T{}
	for _, v := range input {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func ProcessValidationErrors(err error) map[string]string {
	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)
	for _, fieldError := range validationErrors {
		fieldName := fieldError.Field()
		errorResponse[fieldName] = fmt.Sprintf("validation failed on '%s'", fieldError.Tag())
	}
	return errorResponse
}

func StringToDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}
	return dec, nil
}

// WithSingletonLock runs fn only if this instance wins the named redis lock.
// Used to keep periodic jobs (stale sweep) single-flight across instances.
// When redis is not configured, fn runs unguarded (single-instance deploys).
func WithSingletonLock(ctx context.Context, lockName string, ttl time.Duration, fn func() error) error {
	locker := config.GetRedisLock()
	if locker == nil {
		return fn()
	}
	lock, err := locker.Obtain(ctx, lockName, ttl, nil)
	if err == redislock.ErrNotObtained {
		// Another instance holds it; not an error.
		return nil
	} else if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()
	return fn()
}
