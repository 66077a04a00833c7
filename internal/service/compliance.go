package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"clearance/internal/models"
)

// Compliance number backend names, selectable per workflow.
const (
	ComplianceBackendUUID4            = "uuid4"
	ComplianceBackendSequential       = "sequential"
	ComplianceBackendIdentifierPrefix = "sequential_with_identifier_prefix"
)

// ComplianceNumberFunc mints a compliance number for a fully approved request.
type ComplianceNumberFunc func(request *models.ModerationRequest, workflow *models.Workflow) string

var complianceBackends = map[string]ComplianceNumberFunc{
	ComplianceBackendUUID4: func(*models.ModerationRequest, *models.Workflow) string {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	},
	ComplianceBackendSequential: func(r *models.ModerationRequest, _ *models.Workflow) string {
		return strconv.FormatUint(uint64(r.ID), 10)
	},
	ComplianceBackendIdentifierPrefix: func(r *models.ModerationRequest, w *models.Workflow) string {
		return fmt.Sprintf("%s%d", w.Identifier, r.ID)
	},
}

// GenerateComplianceNumber resolves the workflow's backend and mints a number.
// An unknown backend name is a configuration error surfaced at approval time.
func GenerateComplianceNumber(request *models.ModerationRequest, workflow *models.Workflow) (string, error) {
	return mintWithBackend(workflow.ComplianceNumberBackend, request, workflow)
}

func mintWithBackend(name string, request *models.ModerationRequest, workflow *models.Workflow) (string, error) {
	if name == "" {
		name = ComplianceBackendUUID4
	}
	backend, ok := complianceBackends[name]
	if !ok {
		return "", models.NewValidationError(fmt.Sprintf("unknown compliance number backend %q", name))
	}
	return backend(request, workflow), nil
}

// ComplianceBackendNames lists the registered backend names.
func ComplianceBackendNames() []string {
	names := make([]string, 0, len(complianceBackends))
	for name := range complianceBackends {
		names = append(names, name)
	}
	return names
}
