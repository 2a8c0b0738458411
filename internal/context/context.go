package context

import (
	"context"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey holds the authenticated user's numeric id
	UserIDKey ContextKey = "user_id"
	// UsernameKey holds the authenticated username
	UsernameKey ContextKey = "username"
	// SessionIDKey holds the live session row id
	SessionIDKey ContextKey = "session_id"
	// SessionTokenKey holds the session cache token behind the cookie
	SessionTokenKey ContextKey = "session_token"
)

// WithIdentity stores the authenticated identity on the context
func WithIdentity(ctx context.Context, userID int64, username string, sessionID int64, token string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UsernameKey, username)
	ctx = context.WithValue(ctx, SessionIDKey, sessionID)
	return context.WithValue(ctx, SessionTokenKey, token)
}

// ExtractUserID extracts the user ID from the request context
func ExtractUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}

// ExtractUsername extracts the username from the request context
func ExtractUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}

// ExtractSessionID extracts the session id from the request context
func ExtractSessionID(ctx context.Context) (int64, bool) {
	sessionID, ok := ctx.Value(SessionIDKey).(int64)
	return sessionID, ok
}

// ExtractSessionToken extracts the session cache token
func ExtractSessionToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(SessionTokenKey).(string)
	return token, ok
}
