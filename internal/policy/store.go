package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Store holds the policies loaded at startup. It is read-only after load;
// policy administration happens outside this process.
type Store struct {
	policies []*Policy
	byID     map[string]*Policy
}

// LoadFile reads a policy set from a YAML file. Duplicate ids and active
// duplicates of the same name are load errors.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policies: %w", err)
	}
	return Load(data)
}

// Load parses a policy set from YAML bytes.
func Load(data []byte) (*Store, error) {
	var doc struct {
		Policies []*Policy `yaml:"policies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode policies: %w", err)
	}

	s := &Store{byID: make(map[string]*Policy, len(doc.Policies))}
	activeNames := make(map[string]string)
	for _, p := range doc.Policies {
		if p.ID == "" {
			return nil, fmt.Errorf("policy %q has no id", p.Name)
		}
		if _, dup := s.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate policy id %q", p.ID)
		}
		for i := range p.Rules {
			rule := &p.Rules[i]
			if !rule.Action.Valid() {
				return nil, fmt.Errorf("policy %s rule %s: unknown action %q", p.ID, rule.ID, rule.Action)
			}
		}
		if p.IsActive {
			if prev, clash := activeNames[p.Name]; clash {
				return nil, fmt.Errorf("policy name %q active in versions %s and %s", p.Name, prev, p.Version)
			}
			activeNames[p.Name] = p.Version
		}
		s.byID[p.ID] = p
		s.policies = append(s.policies, p)
	}
	return s, nil
}

// Empty returns a store with no policies.
func Empty() *Store {
	return &Store{byID: map[string]*Policy{}}
}

// Get returns the policy with the given id.
func (s *Store) Get(id string) (*Policy, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// All returns every loaded policy in file order.
func (s *Store) All() []*Policy {
	return s.policies
}

// Active returns the active policies in file order.
func (s *Store) Active() []*Policy {
	var out []*Policy
	for _, p := range s.policies {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out
}
