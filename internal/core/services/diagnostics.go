package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getset-labs/pox-mcp/internal/core/ports/driven"
)

// permissionTest probes one Graph endpoint that requires a specific
// application permission.
type permissionTest struct {
	permission string
	path       string
	beta       bool
	resource   string
}

// permissionTests covers the application permissions the tool set
// needs. Read and write variants of a permission probe the same read
// endpoint; a 403 means the permission is missing either way.
var permissionTests = []permissionTest{
	{"Application.Read.All", "/applications?$top=1", false, "applications"},
	{"Device.Read.All", "/devices?$top=1", false, "devices"},
	{"DeviceManagementApps.Read.All", "/deviceAppManagement/mobileApps?$top=1", true, "Intune apps"},
	{"DeviceManagementApps.ReadWrite.All", "/deviceAppManagement/mobileApps?$top=1", true, "Intune apps (write)"},
	{"DeviceManagementConfiguration.ReadWrite.All", "/deviceManagement/deviceConfigurations?$top=1", true, "device configurations"},
	{"DeviceManagementManagedDevices.ReadWrite.All", "/deviceManagement/managedDevices?$top=1", true, "managed devices"},
	{"Directory.Read.All", "/users?$top=1", false, "directory data"},
	{"EntitlementManagement.ReadWrite.All", "/identityGovernance/entitlementManagement/catalogs?$top=1", false, "entitlement management"},
	{"Group.Read.All", "/groups?$top=1", false, "groups"},
	{"Group.ReadWrite.All", "/groups?$top=1", false, "groups (write)"},
	{"GroupMember.Read.All", "/groups?$top=1&$select=id", false, "group memberships"},
	{"GroupMember.ReadWrite.All", "/groups?$top=1&$select=id", false, "group memberships (write)"},
	{"NetworkAccess.Read.All", "/networkAccess/forwardingProfiles", true, "network access"},
	{"NetworkAccess.ReadWrite.All", "/networkAccess/forwardingProfiles", true, "network access (write)"},
	{"Policy.Read.All", "/policies/authorizationPolicy", false, "policies"},
	{"Policy.Read.ConditionalAccess", "/identity/conditionalAccess/policies?$top=1", false, "conditional access policies"},
	{"Policy.ReadWrite.ConditionalAccess", "/identity/conditionalAccess/policies?$top=1", true, "conditional access policies (write)"},
	{"User.Read.All", "/users?$top=1", false, "users' full profiles"},
	{"User.ReadBasic.All", "/users?$top=1&$select=id,displayName", false, "users' basic profiles"},
}

// DiagnosticsService verifies Graph API connectivity and token
// permissions.
type DiagnosticsService struct {
	graph  driven.GraphClient
	tokens driven.TokenProvider
}

// NewDiagnosticsService creates the diagnostics service.
func NewDiagnosticsService(graph driven.GraphClient, tokens driven.TokenProvider) *DiagnosticsService {
	return &DiagnosticsService{graph: graph, tokens: tokens}
}

// CheckTokenPermissions probes a Graph endpoint per application
// permission and reports which permissions the current token actually
// carries. A 403 marks the permission missing; other failures are
// reported as errors.
func (s *DiagnosticsService) CheckTokenPermissions(ctx context.Context) Result {
	slog.Info("check_token_permissions called")
	timestamp := time.Now().UTC().Format(time.RFC3339)

	tok, err := s.tokens.GetToken(ctx)
	if err != nil {
		return Result{
			"status":    "error",
			"message":   fmt.Sprintf("Error getting access token: %v", err),
			"timestamp": timestamp,
		}
	}
	if tok == "" {
		return Result{
			"status":    "error",
			"message":   "Authentication is disabled. Enable ENTRA authentication to use this tool.",
			"timestamp": timestamp,
		}
	}

	var tests []map[string]any
	var progress []string
	working, missing := 0, 0

	for i, test := range permissionTests {
		progress = append(progress, fmt.Sprintf("Test %d: %s", i+1, test.permission))

		res, err := s.graph.Do(ctx, driven.GraphRequest{
			Method: http.MethodGet,
			Path:   test.path,
			Beta:   test.beta,
		})
		entry := map[string]any{
			"permission": test.permission,
			"endpoint":   test.path,
		}
		switch {
		case err != nil:
			missing++
			entry["status"] = "ERROR"
			entry["error"] = err.Error()
			progress = append(progress, fmt.Sprintf("  Error testing %s: %v", test.resource, err))
		case res.StatusCode == http.StatusForbidden:
			missing++
			entry["status"] = "MISSING"
			entry["error"] = "Insufficient privileges"
			progress = append(progress, fmt.Sprintf("  Cannot read %s: insufficient privileges", test.resource))
		case res.OK():
			working++
			entry["status"] = "WORKING"
			progress = append(progress, fmt.Sprintf("  Can read %s", test.resource))
		default:
			missing++
			entry["status"] = "ERROR"
			entry["error"] = fmt.Sprintf("HTTP %d", res.StatusCode)
			progress = append(progress, fmt.Sprintf("  Cannot read %s: HTTP %d", test.resource, res.StatusCode))
		}
		tests = append(tests, entry)
	}

	recommendation := "All tested permissions are working."
	if missing > 0 {
		recommendation = "Missing permissions detected. Add them to the app registration in the Azure portal, grant admin consent, and allow up to 30 minutes for propagation."
	}

	slog.Info("permissions diagnostic completed", "working", working, "total", len(tests))

	return Result{
		"status": "success",
		"data": map[string]any{
			"summary": map[string]any{
				"working":   working,
				"missing":   missing,
				"total":     len(tests),
				"timestamp": timestamp,
			},
			"tests":          tests,
			"recommendation": recommendation,
		},
		"progress":  progress,
		"message":   fmt.Sprintf("Permissions diagnostic: %d working / %d missing", working, missing),
		"timestamp": timestamp,
	}
}
