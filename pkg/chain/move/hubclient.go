package move

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/certen/independant-validator/pkg/address"
)

// HubClient queries the hub chain's solver registry resource via the
// Move-style REST resource endpoint named in spec §6
// ("/v1/accounts/{addr}/resource/…"). It implements pkg/registry.HubClient.
type HubClient struct {
	restURL            string
	registryModuleAddr string
	client             *http.Client
}

// NewHubClient constructs a solver-registry client against the hub chain.
func NewHubClient(restURL, registryModuleAddr string) *HubClient {
	return &HubClient{restURL: restURL, registryModuleAddr: registryModuleAddr, client: &http.Client{}}
}

// solverRegistryResource mirrors the on-hub resource holding the
// hub-solver -> per-family address table.
type solverRegistryResource struct {
	Data struct {
		Entries []struct {
			Solver string `json:"solver"`
			MVM    string `json:"mvm_addr,omitempty"`
			EVM    string `json:"evm_addr,omitempty"`
			SVM    string `json:"svm_addr,omitempty"`
		} `json:"entries"`
	} `json:"data"`
}

// SolverAddressOn implements pkg/registry.HubClient.
func (c *HubClient) SolverAddressOn(ctx context.Context, hubSolver address.Canonical, family address.Family) (address.Canonical, bool, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s/resource/%s::registry::SolverRegistry", c.restURL, c.registryModuleAddr, c.registryModuleAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return address.Canonical{}, false, fmt.Errorf("registry: building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return address.Canonical{}, false, fmt.Errorf("registry: querying hub resource: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return address.Canonical{}, false, fmt.Errorf("registry: hub resource query returned status %d", resp.StatusCode)
	}

	var res solverRegistryResource
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return address.Canonical{}, false, fmt.Errorf("registry: decoding hub resource: %w", err)
	}

	hubHex := address.FormatMVM(hubSolver)
	for _, e := range res.Data.Entries {
		if e.Solver != hubHex {
			continue
		}
		switch family {
		case address.MVM:
			if e.MVM == "" {
				return address.Canonical{}, false, nil
			}
			addr, err := address.ParseMVM(e.MVM)
			return addr, err == nil, err
		case address.EVM:
			if e.EVM == "" {
				return address.Canonical{}, false, nil
			}
			addr, err := address.ParseEVM(e.EVM)
			return addr, err == nil, err
		case address.SVM:
			if e.SVM == "" {
				return address.Canonical{}, false, nil
			}
			addr, err := address.ParseSVM(e.SVM)
			return addr, err == nil, err
		default:
			return address.Canonical{}, false, fmt.Errorf("registry: unknown family %q", family)
		}
	}
	return address.Canonical{}, false, nil
}
