// Package worker runs the background jobs of navd: the streaming fix
// subscriber and the idle session janitor.
package worker

import (
	"time"
)

// SubscriberConfig holds configuration for the fix subscriber.
type SubscriberConfig struct {
	// ProjectID is the Google Cloud project of the subscription.
	ProjectID string

	// Subscription is the name or ID of the fix subscription.
	Subscription string

	// MaxOutstanding caps the fixes being processed at once.
	// Default: 100
	MaxOutstanding int

	// MaxExtension is how long a fix may stay unacknowledged.
	// Default: 1 minute
	MaxExtension time.Duration
}

// JanitorConfig holds configuration for the idle session janitor.
type JanitorConfig struct {
	// Interval between sweeps.
	// Default: 1 minute
	Interval time.Duration
}

// DefaultSubscriberConfig returns the default subscriber settings for a subscription.
func DefaultSubscriberConfig(projectID, subscription string) SubscriberConfig {
	return SubscriberConfig{
		ProjectID:      projectID,
		Subscription:   subscription,
		MaxOutstanding: 100,
		MaxExtension:   time.Minute,
	}
}

func (c SubscriberConfig) withDefaults() SubscriberConfig {
	if c.MaxOutstanding <= 0 {
		c.MaxOutstanding = 100
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = time.Minute
	}
	return c
}
