package auth

import (
	"context"
	"errors"
)

type ctxKey int

const userIdKey ctxKey = iota

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrInvalidToken = errors.New("invalid token")
)

func WithUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserIdFromContext(ctx context.Context) string {
	userId, _ := ctx.Value(userIdKey).(string)
	return userId
}

func RequireUser(ctx context.Context) (string, error) {
	if userId := UserIdFromContext(ctx); userId != "" {
		return userId, nil
	}
	return "", ErrAuthRequired
}
