package app

import (
	"github.com/prajyot7070/MetaSpace/internal/core"
)

// Orchestrator is the single context object owning the engines and
// registries a connection handler needs. Constructed once in main and
// passed by reference, so tests can build isolated instances.
type Orchestrator struct {
	Registry  *Registry
	Spaces    core.SpaceFactory
	Proximity *Proximity
	Groups    *Groups
	Calls     *Calls
	Directory core.SpaceDirectory
}
