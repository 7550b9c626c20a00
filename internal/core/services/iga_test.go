package services

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getset-labs/pox-mcp/internal/core/ports/driven"
)

func newIGAService(handler func(driven.GraphRequest) (*driven.GraphResult, error)) (*IGAService, *fakeGraph) {
	graph := &fakeGraph{handler: handler}
	svc := NewIGAService(graph)
	svc.resourceWait = 0
	return svc, graph
}

func TestIGA_ListAccessPackages(t *testing.T) {
	svc, graph := newIGAService(func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return ok(listBody(map[string]any{"id": "ap1", "displayName": "Package 1"})), nil
	})

	r := svc.ListAccessPackages(context.Background(), ListAccessPackagesParams{})

	require.Equal(t, "success", r["status"])
	assert.Equal(t, 1, r["count"])
	assert.Equal(t, entitlementPath+"/accessPackages", graph.requests()[0].Path)
}

func TestIGA_ListAccessPackages_QueryOptions(t *testing.T) {
	svc, graph := newIGAService(func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return ok(listBody()), nil
	})

	r := svc.ListAccessPackages(context.Background(), ListAccessPackagesParams{
		Select: "id,displayName",
		Filter: "contains(displayName,'POC')",
		Expand: "catalog",
	})

	require.Equal(t, "success", r["status"])
	path := graph.requests()[0].Path
	assert.Contains(t, path, "%24select=id%2CdisplayName")
	assert.Contains(t, path, "%24filter=")
	assert.Contains(t, path, "%24expand=catalog")
}

func TestIGA_CreateAccessCatalog(t *testing.T) {
	svc, graph := newIGAService(func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return created(map[string]any{"id": "cat-1", "displayName": "POC Catalog"}), nil
	})

	r := svc.CreateAccessCatalog(context.Background(), "POC Catalog", "POC resources", "published", false)

	require.Equal(t, "success", r["status"])
	assert.Equal(t, "cat-1", r["catalogId"])

	body := graph.requests()[0].Body.(map[string]any)
	assert.Equal(t, "POC Catalog", body["displayName"])
	assert.Equal(t, "published", body["state"])
	assert.Equal(t, false, body["isExternallyVisible"])
	assert.Equal(t, entitlementPath+"/catalogs", graph.requests()[0].Path)
}

func TestIGA_CreateAccessCatalog_Validation(t *testing.T) {
	svc, graph := newIGAService(nil)

	tests := []struct {
		name        string
		displayName string
		description string
		state       string
		wantMessage string
	}{
		{name: "missing name", description: "d", state: "published", wantMessage: "displayName is required"},
		{name: "missing description", displayName: "n", state: "published", wantMessage: "description is required"},
		{name: "bad state", displayName: "n", description: "d", state: "draft", wantMessage: "state must be either"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := svc.CreateAccessCatalog(context.Background(), tt.displayName, tt.description, tt.state, false)
			assert.Equal(t, "error", r["status"])
			assert.Contains(t, r["message"], tt.wantMessage)
		})
	}
	assert.Empty(t, graph.requests())
}

func TestIGA_CreateAccessCatalog_NonCreatedStatus(t *testing.T) {
	svc, _ := newIGAService(func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return graphError(http.StatusForbidden, "Authorization_RequestDenied", "nope"), nil
	})

	r := svc.CreateAccessCatalog(context.Background(), "n", "d", "published", false)

	assert.Equal(t, "error", r["status"])
	assert.Equal(t, http.StatusForbidden, r["statusCode"])
}

func TestIGA_CreateAccessPackage(t *testing.T) {
	svc, graph := newIGAService(func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return created(map[string]any{"id": "ap-1"}), nil
	})

	r := svc.CreateAccessPackage(context.Background(), "cat-1", "POC Package", "POC access")

	require.Equal(t, "success", r["status"])
	assert.Equal(t, "ap-1", r["accessPackageId"])
	assert.Equal(t, "cat-1", r["catalogId"])

	body := graph.requests()[0].Body.(map[string]any)
	assert.Equal(t, map[string]any{"id": "cat-1"}, body["catalog"])
	assert.Equal(t, "POC access", body["description"])
}

func TestIGA_CreateAccessPackage_OmitsEmptyDescription(t *testing.T) {
	svc, graph := newIGAService(func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return created(map[string]any{"id": "ap-1"}), nil
	})

	r := svc.CreateAccessPackage(context.Background(), "cat-1", "POC Package", "")

	require.Equal(t, "success", r["status"])
	body := graph.requests()[0].Body.(map[string]any)
	assert.NotContains(t, body, "description")
}

func TestIGA_CreateAccessPackage_Validation(t *testing.T) {
	svc, _ := newIGAService(nil)

	r := svc.CreateAccessPackage(context.Background(), "", "name", "")
	assert.Equal(t, "error", r["status"])

	r = svc.CreateAccessPackage(context.Background(), "cat-1", "", "")
	assert.Equal(t, "error", r["status"])
}

func TestIGA_AddResourceGroupToPackage(t *testing.T) {
	svc, graph := newIGAService(func(req driven.GraphRequest) (*driven.GraphResult, error) {
		switch {
		case strings.HasSuffix(req.Path, "/accessPackageResourceRequests"):
			return created(map[string]any{"id": "req-1"}), nil
		case strings.Contains(req.Path, "/accessPackageResources"):
			return ok(listBody(map[string]any{"id": "res-1", "originId": "grp-1"})), nil
		case strings.HasSuffix(req.Path, "/accessPackageResourceRoleScopes"):
			return created(map[string]any{"id": "role-scope-1"}), nil
		}
		t.Errorf("unexpected request %s %s", req.Method, req.Path)
		return nil, nil
	})

	r := svc.AddResourceGroupToPackage(context.Background(), "cat-1", "ap-1", "grp-1")

	require.Equal(t, "success", r["status"])
	data := r["data"].(map[string]any)
	assert.Equal(t, "res-1", data["resourceId"])
	assert.Equal(t, "role-scope-1", data["roleId"])
	assert.Equal(t, "Member", data["role"])
	assert.NotEmpty(t, r["correlationId"])

	reqs := graph.requests()
	require.Len(t, reqs, 3)

	// The catalog request runs on the beta endpoint with a correlation
	// header and AdminAdd semantics.
	assert.True(t, reqs[0].Beta)
	assert.NotEmpty(t, reqs[0].Headers["x-correlation-id"])
	body := reqs[0].Body.(map[string]any)
	assert.Equal(t, "AdminAdd", body["requestType"])
	assert.Equal(t, "cat-1", body["catalogId"])

	// The role scope links the Member role of the group.
	roleBody := reqs[2].Body.(map[string]any)
	role := roleBody["role"].(map[string]any)
	assert.Equal(t, "Member_grp-1", role["originId"])
	assert.Equal(t, "res-1", role["resource"].(map[string]any)["id"])
	scope := roleBody["scope"].(map[string]any)
	assert.Equal(t, "grp-1", scope["originId"])
}

func TestIGA_AddResourceGroupToPackage_ConflictsAreSuccess(t *testing.T) {
	svc, _ := newIGAService(func(req driven.GraphRequest) (*driven.GraphResult, error) {
		switch {
		case strings.HasSuffix(req.Path, "/accessPackageResourceRequests"):
			return graphError(http.StatusConflict, "Conflict", "already exists"), nil
		case strings.Contains(req.Path, "/accessPackageResources"):
			return ok(listBody(map[string]any{"id": "res-1"})), nil
		default:
			return graphError(http.StatusConflict, "Conflict", "already assigned"), nil
		}
	})

	r := svc.AddResourceGroupToPackage(context.Background(), "cat-1", "ap-1", "grp-1")

	require.Equal(t, "success", r["status"])
	assert.Equal(t, "Group resource is already assigned to access package", r["message"])
}

func TestIGA_AddResourceGroupToPackage_CatalogAddFails(t *testing.T) {
	svc, _ := newIGAService(func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return graphError(http.StatusBadRequest, "BadRequest", "invalid group"), nil
	})

	r := svc.AddResourceGroupToPackage(context.Background(), "cat-1", "ap-1", "grp-1")

	assert.Equal(t, "error", r["status"])
	assert.Equal(t, "add_to_catalog", r["step"])
	assert.Equal(t, http.StatusBadRequest, r["statusCode"])
}

func TestIGA_AddResourceGroupToPackage_ResourceNotFound(t *testing.T) {
	svc, _ := newIGAService(func(req driven.GraphRequest) (*driven.GraphResult, error) {
		if strings.HasSuffix(req.Path, "/accessPackageResourceRequests") {
			return created(map[string]any{"id": "req-1"}), nil
		}
		return ok(listBody()), nil
	})

	r := svc.AddResourceGroupToPackage(context.Background(), "cat-1", "ap-1", "grp-1")

	assert.Equal(t, "error", r["status"])
	assert.Equal(t, "get_resource_id", r["step"])
	assert.Contains(t, r["message"], "not found in catalog")
}

func TestIGA_AddResourceGroupToPackage_Validation(t *testing.T) {
	svc, graph := newIGAService(nil)

	for _, args := range [][3]string{
		{"", "ap-1", "grp-1"},
		{"cat-1", "", "grp-1"},
		{"cat-1", "ap-1", ""},
	} {
		r := svc.AddResourceGroupToPackage(context.Background(), args[0], args[1], args[2])
		assert.Equal(t, "error", r["status"])
	}
	assert.Empty(t, graph.requests())
}
