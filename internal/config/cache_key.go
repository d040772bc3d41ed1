package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// JobEventChannel returns the Redis PubSub channel for a job's
// progress events.
func (r *CacheKeyStruct) JobEventChannel(jobID string) string {
	return fmt.Sprintf("job:%s:events", jobID)
}

// JobSnapshotKey returns the cache key for a job's latest snapshot.
func (r *CacheKeyStruct) JobSnapshotKey(jobID string) string {
	return fmt.Sprintf("job:%s:snapshot", jobID)
}

// ActiveReferenceKey returns the cache key for an exam's active
// reference identifier.
func (r *CacheKeyStruct) ActiveReferenceKey(examName string) string {
	return fmt.Sprintf("reference:%s:active", examName)
}

var CacheKey = NewCacheKeyStruct()
