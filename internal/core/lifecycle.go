package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable is implemented by modules that accept YAML configuration.
// Configure runs after instantiation and before Provision; the node
// holds the raw YAML of the module's config section.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that need setup before start:
// resolving defaults, opening resources, registering services, loading
// sub-modules through the AppContext.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator is implemented by modules that can verify their effective
// configuration. Runs after Provision and must be side-effect free.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that run background work: listeners,
// pollers, tickers. Start runs after every module has been provisioned
// and validated, in load order.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that hold resources. Stop runs
// during shutdown in reverse start order; ctx carries the shutdown
// deadline.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader is implemented by modules that support live configuration
// reload. Reload receives the module's freshly loaded config section;
// modules whose section disappeared from the config are skipped, not
// unloaded.
type Reloader interface {
	Reload(node *yaml.Node) error
}
