package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RetentionOption is one time-to-live choice offered to uploaders.
type RetentionOption struct {
	TTLSeconds int64  `yaml:"ttl" json:"ttl"`
	Label      string `yaml:"label" json:"label"`
}

// RetentionPolicy is the set of time-to-live choices and the fallback
// applied when an upload requests a TTL that is not offered.
type RetentionPolicy struct {
	DefaultTTLSeconds int64             `yaml:"default_ttl" json:"default_ttl"`
	Options           []RetentionOption `yaml:"options" json:"options"`
}

const defaultRetentionYAML = `
default_ttl: 7200
options:
  - {ttl: 60, label: 1 minute}
  - {ttl: 600, label: 10 minutes}
  - {ttl: 3600, label: 1 hour}
  - {ttl: 7200, label: 2 hours}
  - {ttl: 86400, label: 1 day}
  - {ttl: 172800, label: 2 days}
  - {ttl: 604800, label: 1 week}
  - {ttl: 1209600, label: 2 weeks}
  - {ttl: 2592000, label: 1 month}
`

// DefaultRetentionPolicy returns the built-in TTL schedule.
func DefaultRetentionPolicy() RetentionPolicy {
	var policy RetentionPolicy
	// The embedded document is constant; a parse failure is a programming
	// error surfaced at first use in tests.
	if err := yaml.Unmarshal([]byte(defaultRetentionYAML), &policy); err != nil {
		panic(fmt.Sprintf("parse embedded retention policy: %v", err))
	}
	return policy
}

// LoadRetentionPolicy reads a retention policy from a YAML file, or the
// built-in schedule when path is empty.
func LoadRetentionPolicy(path string) (RetentionPolicy, error) {
	if path == "" {
		return DefaultRetentionPolicy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return RetentionPolicy{}, err
	}
	var policy RetentionPolicy
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return RetentionPolicy{}, fmt.Errorf("parse retention policy %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return RetentionPolicy{}, fmt.Errorf("retention policy %s: %w", path, err)
	}
	return policy, nil
}

// Validate checks the policy offers at least one positive TTL and that the
// default is one of the offered options.
func (p RetentionPolicy) Validate() error {
	if len(p.Options) == 0 {
		return fmt.Errorf("at least one retention option is required")
	}
	for _, opt := range p.Options {
		if opt.TTLSeconds <= 0 {
			return fmt.Errorf("retention option ttl must be positive, got %d", opt.TTLSeconds)
		}
	}
	if !p.offers(p.DefaultTTLSeconds) {
		return fmt.Errorf("default_ttl %d is not an offered option", p.DefaultTTLSeconds)
	}
	return nil
}

// Resolve maps a requested TTL to an offered one, falling back to the
// default for zero or unoffered values.
func (p RetentionPolicy) Resolve(requested int64) time.Duration {
	if p.offers(requested) {
		return time.Duration(requested) * time.Second
	}
	return time.Duration(p.DefaultTTLSeconds) * time.Second
}

// MaxTTL returns the longest offered TTL.
func (p RetentionPolicy) MaxTTL() time.Duration {
	var max int64
	for _, opt := range p.Options {
		if opt.TTLSeconds > max {
			max = opt.TTLSeconds
		}
	}
	return time.Duration(max) * time.Second
}

func (p RetentionPolicy) offers(ttl int64) bool {
	for _, opt := range p.Options {
		if opt.TTLSeconds == ttl {
			return true
		}
	}
	return false
}
