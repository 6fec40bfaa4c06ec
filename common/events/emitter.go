package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HuongNV13/moodle/common/redis"
)

// StreamResourceExported is the redis stream carrying share audit events
const StreamResourceExported = "moodlenet:resource_exported"

// ResourceExported is emitted once per share attempt, success or failure
type ResourceExported struct {
	UserID      int64   `json:"userid"`
	CourseID    int64   `json:"courseid"`
	CMIDs       []int64 `json:"cmids,omitempty"`
	ResourceURL string  `json:"resourceurl"`
	Success     bool    `json:"success"`
	Timestamp   int64   `json:"timestamp"`
}

// Validate checks if all required fields are present
func (e *ResourceExported) Validate() error {
	if e.UserID == 0 {
		return fmt.Errorf("user id is required")
	}
	if e.CourseID == 0 {
		return fmt.Errorf("course id is required")
	}
	return nil
}

// Logger interface for emitter logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Emitter publishes audit events to the event stream consumed by the
// (out of scope) admin log collaborator
type Emitter struct {
	redis  *redis.Client
	logger Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(redisClient *redis.Client, logger Logger) *Emitter {
	return &Emitter{
		redis:  redisClient,
		logger: logger,
	}
}

// EmitResourceExported publishes one resource_exported event
func (e *Emitter) EmitResourceExported(ctx context.Context, event *ResourceExported) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid resource_exported event: %w", err)
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	cmids, err := json.Marshal(event.CMIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal cmids: %w", err)
	}

	_, err = e.redis.AddToStream(ctx, StreamResourceExported, map[string]interface{}{
		"userid":      event.UserID,
		"courseid":    event.CourseID,
		"cmids":       string(cmids),
		"resourceurl": event.ResourceURL,
		"success":     event.Success,
		"timestamp":   event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to emit resource_exported: %w", err)
	}

	e.logger.Info("resource_exported event emitted",
		"user_id", event.UserID,
		"course_id", event.CourseID,
		"success", event.Success,
	)
	return nil
}
