package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key holding the active token ID of a user.
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// SessionTreeKey returns the cache key for a learning session's full question tree.
func (r *CacheKeyStruct) SessionTreeKey(sessionID string) string {
	return fmt.Sprintf("session:%s:tree", sessionID)
}

// SessionResponsesKey returns the hash of the latest choice per student and question.
func (r *CacheKeyStruct) SessionResponsesKey(sessionID string) string {
	return fmt.Sprintf("session:%s:responses", sessionID)
}

// ResponseField returns the hash field of one student's response to one question.
func (r *CacheKeyStruct) ResponseField(studentID int, questionID string) string {
	return fmt.Sprintf("%d:%s", studentID, questionID)
}

// SessionCountsChannel returns the Redis PubSub channel carrying live option counts.
func (r *CacheKeyStruct) SessionCountsChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:counts", sessionID)
}

var CacheKey = NewCacheKeyStruct()

// RateLimitKey returns the counter of one client in one rate limit window.
func (r *CacheKeyStruct) RateLimitKey(scope, clientIP string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, clientIP, window)
}
