package stagingapi

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"
)

// stagingAPISchema defines the configuration schema.
var stagingAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the staging-api component.
type Config struct {
	// StreamName is the JetStream stream for consuming requests and publishing results.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream for staging requests,category:basic,default:STAGING"`

	// ConsumerName is the durable consumer name for request consumption.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name for request consumption,category:basic,default:staging-api"`

	// RepoPath is the local checkout root backing the Content Source and Commit Sink.
	// When empty the component falls back to STAGEGROUND_REPO_PATH then the working directory.
	RepoPath string `json:"repo_path" schema:"type:string,description:Local checkout root path,category:basic,default:"`

	// Retention bounds save-point history per session (0 = default).
	Retention int `json:"retention" schema:"type:int,description:Save-point retention per session,category:advanced,default:20"`

	// RemoteTimeout bounds Content Source and Commit Sink calls (duration string).
	RemoteTimeout string `json:"remote_timeout" schema:"type:string,description:Remote call timeout (duration string),category:advanced,default:30s"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Input/output port definitions,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:    "STAGING",
		ConsumerName:  "staging-api",
		Retention:     20,
		RemoteTimeout: "30s",
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "staging-requests",
					Type:        "jetstream",
					Subject:     "staging.request",
					StreamName:  "STAGING",
					Description: "Receive staging and validation requests",
					Required:    true,
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "staging-results",
					Type:        "nats",
					Subject:     "staging.result.>",
					Description: "Publish staging operation results",
					Required:    false,
				},
			},
		},
	}
}

// GetRemoteTimeout parses the remote timeout duration.
// Returns 30 seconds if the field is empty or unparseable.
func (c *Config) GetRemoteTimeout() time.Duration {
	if c.RemoteTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(c.RemoteTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.Retention < 0 {
		return fmt.Errorf("retention must not be negative")
	}
	return nil
}
