package testhelpers

import "time"

// Test configuration constants shared across all test packages
const (
	// General constants
	ReleaseName = "release-name"
	Namespace   = "astronomer"
	BaseDomain  = "example.com"
	// SetupTimeout bounds one-time suite setup such as adding chart repositories
	SetupTimeout = 60 * time.Second

	// Source paths as written in "# Source:" comments
	HoustonConfigMapSource  = "platform/charts/astronomer/templates/houston/houston-configmap.yaml"
	HoustonDeploymentSource = "platform/charts/astronomer/templates/houston/houston-deployment.yaml"

	// Chart relative template paths accepted by ShowOnly
	HoustonConfigMapTemplate    = "charts/astronomer/templates/houston/houston-configmap.yaml"
	HoustonIngressTemplate      = "charts/astronomer/templates/houston/houston-ingress.yaml"
	CommanderRoleTemplate       = "charts/astronomer/templates/commander/commander-role.yaml"
	ConfigSyncerCronJobTemplate = "charts/astronomer/templates/config-syncer/config-syncer-cronjob.yaml"
	ConfigSyncerRoleTemplate    = "charts/astronomer/templates/config-syncer/config-syncer-role.yaml"
	ConfigSyncerBindingTemplate = "charts/astronomer/templates/config-syncer/config-syncer-rolebinding.yaml"

	// Houston constants
	HoustonDeploymentName = ReleaseName + "-houston"
	HoustonContainerName  = "houston"
	HoustonServiceName    = ReleaseName + "-houston"
	HoustonPortName       = "houston-http"
	HoustonPort           = 8871

	// Commander and config syncer constants
	CommanderName    = ReleaseName + "-commander"
	ConfigSyncerName = ReleaseName + "-config-syncer"
)
