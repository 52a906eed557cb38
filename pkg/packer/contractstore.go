package packer

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// jsonContract is the on-disk shape for a custom Contract.
type jsonContract struct {
	ID              string             `json:"id"`
	Description     string             `json:"description"`
	RequiredGroups  []Group            `json:"required_groups,omitempty"`
	MandatorySlices []MandatorySlice   `json:"mandatory_slices,omitempty"`
	MaxPerGroup     int                `json:"max_per_group,omitempty"`
	GroupWeights    map[Group]float64  `json:"group_weights,omitempty"`
	TagWeights      map[string]float64 `json:"tag_weights,omitempty"`
}

func toJSON(c Contract) jsonContract {
	return jsonContract{
		ID: c.ID, Description: c.Description, RequiredGroups: c.RequiredGroups,
		MandatorySlices: c.MandatorySlices, MaxPerGroup: c.MaxPerGroup,
		GroupWeights: c.GroupWeights, TagWeights: c.TagWeights,
	}
}

func fromJSON(j jsonContract) Contract {
	return Contract{
		ID: j.ID, Description: j.Description, RequiredGroups: j.RequiredGroups,
		MandatorySlices: j.MandatorySlices, MaxPerGroup: j.MaxPerGroup,
		GroupWeights: j.GroupWeights, TagWeights: j.TagWeights,
	}
}

// ContractStore holds custom, user-authored contracts alongside the
// built-in presets, rejecting any custom contract whose id collides
// with a built-in.
type ContractStore struct {
	custom map[string]Contract
}

// NewContractStore builds an empty store.
func NewContractStore() *ContractStore {
	return &ContractStore{custom: map[string]Contract{}}
}

// Add registers a custom contract, failing if its id collides with a
// built-in preset.
func (cs *ContractStore) Add(c Contract) error {
	if _, collides := BuiltinPresets[c.ID]; collides {
		return fmt.Errorf("contract id %q collides with a built-in preset", c.ID)
	}
	cs.custom[c.ID] = c
	return nil
}

// Get resolves a contract by id, built-in first, falling back to
// custom contracts.
func (cs *ContractStore) Get(id string) (Contract, bool) {
	if c, ok := BuiltinPresets[id]; ok {
		return c, true
	}
	c, ok := cs.custom[id]
	return c, ok
}

// Load reads custom contracts from a JSON file (a top-level array of
// contracts) and adds each to the store.
func (cs *ContractStore) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading contract store %s: %w", path, err)
	}
	var raw []jsonContract
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing contract store %s: %w", path, err)
	}
	for _, j := range raw {
		if err := cs.Add(fromJSON(j)); err != nil {
			return err
		}
	}
	return nil
}

// Save writes every custom contract (not built-ins) to path as a
// JSON array, sorted by id.
func (cs *ContractStore) Save(path string) error {
	ids := make([]string, 0, len(cs.custom))
	for id := range cs.custom {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]jsonContract, 0, len(ids))
	for _, id := range ids {
		out = append(out, toJSON(cs.custom[id]))
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling contract store: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing contract store %s: %w", path, err)
	}
	return nil
}
