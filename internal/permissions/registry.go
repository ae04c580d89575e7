package permissions

import (
	"sort"
	"strings"
	"sync"
)

// Permission codes used across the application. Codes are stable strings
// stored in the policy tables, so renaming one is a data migration.
const (
	ViewCompliance  = "view:compliance"
	EditCompliance  = "edit:compliance"
	ApproveEntities = "can:approve-entities"
	ManageSMCR      = "manage:smcr"
	ManageUsers     = "can:manage-users"
	ViewAudit       = "view:audit"
	RequestAccess   = "request:access"
	ReviewAccess    = "review:access"
)

// Definition describes a registered permission code.
type Definition struct {
	Code        string
	Description string
}

type registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

var globalRegistry = &registry{defs: make(map[string]Definition)}

func init() {
	defs := []Definition{
		{Code: ViewCompliance, Description: "View risks, controls and actions"},
		{Code: EditCompliance, Description: "Create compliance records and propose changes"},
		{Code: ApproveEntities, Description: "Review change proposals on governed records"},
		{Code: ManageSMCR, Description: "Review change proposals on SMCR-flagged records"},
		{Code: ManageUsers, Description: "Manage users, roles and permission policy"},
		{Code: ViewAudit, Description: "Read the audit ledger"},
		{Code: RequestAccess, Description: "Request time-boxed elevated access"},
		{Code: ReviewAccess, Description: "View and review access requests"},
	}

	for _, def := range defs {
		register(def)
	}
}

func register(def Definition) {
	code := strings.TrimSpace(def.Code)
	if code == "" {
		panic("permissions: empty code in registry")
	}

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if _, exists := globalRegistry.defs[code]; exists {
		panic("permissions: duplicate code " + code)
	}
	globalRegistry.defs[code] = Definition{Code: code, Description: strings.TrimSpace(def.Description)}
}

// Known reports whether the code is registered.
func Known(code string) bool {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	_, ok := globalRegistry.defs[strings.TrimSpace(code)]
	return ok
}

// All returns every registered definition sorted by code.
func All() []Definition {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	out := make([]Definition, 0, len(globalRegistry.defs))
	for _, def := range globalRegistry.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
