package stagingapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the staging-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "staging-api",
		Factory:     NewComponent,
		Schema:      stagingAPISchema,
		Type:        "processor",
		Protocol:    "staging",
		Domain:      "stageground",
		Description: "Exposes the staging session controller over NATS",
		Version:     "0.1.0",
	})
}
