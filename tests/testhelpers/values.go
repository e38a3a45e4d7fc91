package testhelpers

import (
	"encoding/json"

	utiljson "k8s.io/apimachinery/pkg/util/json"
)

type PrivateRegistryValues struct {
	Enabled    bool   `json:"enabled"`
	Repository string `json:"repository,omitempty"`
}

type NamespacePoolValues struct {
	Enabled    bool `json:"enabled"`
	Namespaces struct {
		Create bool     `json:"create"`
		Names  []string `json:"names,omitempty"`
	} `json:"namespaces"`
}

type FeatureValues struct {
	NamespacePools *NamespacePoolValues `json:"namespacePools,omitempty"`
}

type GlobalValues struct {
	BaseDomain      string                 `json:"baseDomain,omitempty"`
	RbacEnabled     *bool                  `json:"rbacEnabled,omitempty"`
	PrivateRegistry *PrivateRegistryValues `json:"privateRegistry,omitempty"`
	Features        *FeatureValues         `json:"features,omitempty"`
}

type ConfigSyncerValues struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Schedule string `json:"schedule,omitempty"`
}

type HoustonValues struct {
	Replicas      int             `json:"replicas,omitempty"`
	LivenessProbe json.RawMessage `json:"livenessProbe,omitempty"`
}

type AstronomerValues struct {
	ConfigSyncer *ConfigSyncerValues `json:"configSyncer,omitempty"`
	Houston      *HoustonValues      `json:"houston,omitempty"`
}

// PlatformValues is the subset of the platform chart values the tests set.
type PlatformValues struct {
	Global     *GlobalValues     `json:"global,omitempty"`
	Astronomer *AstronomerValues `json:"astronomer,omitempty"`
}

// ToMap converts the values into the generic form handed to renderers.
func (v PlatformValues) ToMap() (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := utiljson.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// WithNamespacePools enables namespace pools for names.
func WithNamespacePools(names ...string) PlatformValues {
	pools := &NamespacePoolValues{Enabled: true}
	pools.Namespaces.Create = true
	pools.Namespaces.Names = names
	return PlatformValues{
		Global: &GlobalValues{Features: &FeatureValues{NamespacePools: pools}},
	}
}
