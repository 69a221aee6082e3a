package policy

import (
	_ "embed"
	"fmt"
	"sort"

	"apartner/internal/models"

	"gopkg.in/yaml.v3"
)

type Operation string

const (
	ContractCreate          Operation = "contract.create"
	ContractView            Operation = "contract.view"
	ContractUpdate          Operation = "contract.update"
	ContractDelete          Operation = "contract.delete"
	ContractSendForSigning  Operation = "contract.send_for_signing"
	ContractAwaitSignature  Operation = "contract.await_signature"
	ContractSignatureStatus Operation = "contract.signature_status"
	ContractDownload        Operation = "contract.download"
	ContractDeleteFile      Operation = "contract.delete_file"
	SuggestionCreate        Operation = "suggestion.create"
	SuggestionList          Operation = "suggestion.list"
	SuggestionResolve       Operation = "suggestion.resolve"
	BillDownload            Operation = "bill.download"
	BillDeleteFile          Operation = "bill.delete_file"
	BillPay                 Operation = "bill.pay"
)

// Known lists every operation a table must define
var Known = []Operation{
	ContractCreate, ContractView, ContractUpdate, ContractDelete,
	ContractSendForSigning, ContractAwaitSignature, ContractSignatureStatus,
	ContractDownload, ContractDeleteFile,
	SuggestionCreate, SuggestionList, SuggestionResolve,
	BillDownload, BillDeleteFile, BillPay,
}

//go:embed policy.yaml
var defaultPolicy []byte

// Table maps (operation, user type) to a permission decision
type Table struct {
	rules map[Operation]map[models.UserType]bool
}

type document struct {
	Operations map[string][]string `yaml:"operations"`
}

// Load parses a policy document. Unknown operations or user types and
// missing operations are rejected.
func Load(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	known := make(map[Operation]bool, len(Known))
	for _, op := range Known {
		known[op] = true
	}

	t := &Table{rules: make(map[Operation]map[models.UserType]bool, len(doc.Operations))}
	for name, roles := range doc.Operations {
		op := Operation(name)
		if !known[op] {
			return nil, fmt.Errorf("policy: unknown operation %q", name)
		}
		allowed := make(map[models.UserType]bool, len(roles))
		for _, r := range roles {
			role := models.UserType(r)
			if !role.Valid() {
				return nil, fmt.Errorf("policy: operation %q names unknown user type %q", name, r)
			}
			allowed[role] = true
		}
		t.rules[op] = allowed
	}

	for _, op := range Known {
		if _, ok := t.rules[op]; !ok {
			return nil, fmt.Errorf("policy: operation %q is not defined", op)
		}
	}
	return t, nil
}

// Default returns the embedded policy table
func Default() (*Table, error) {
	return Load(defaultPolicy)
}

// Allows reports whether role may perform op. Undefined operations are denied.
func (t *Table) Allows(op Operation, role models.UserType) bool {
	return t.rules[op][role]
}

// Roles returns the user types allowed to perform op, sorted
func (t *Table) Roles(op Operation) []models.UserType {
	var out []models.UserType
	for role, ok := range t.rules[op] {
		if ok {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
