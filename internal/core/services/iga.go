package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/getset-labs/pox-mcp/internal/core/ports/driven"
)

const entitlementPath = "/identityGovernance/entitlementManagement"

// IGAService exposes Entra ID entitlement management operations:
// access package catalogs, access packages and group resources.
type IGAService struct {
	graph driven.GraphClient

	// resourceWait gives the catalog time to process a resource request
	// before the resource lookup. Tests shorten it.
	resourceWait time.Duration
}

// NewIGAService creates the access governance service.
func NewIGAService(graph driven.GraphClient) *IGAService {
	return &IGAService{graph: graph, resourceWait: 3 * time.Second}
}

// ListAccessPackagesParams are optional OData query options for
// ListAccessPackages.
type ListAccessPackagesParams struct {
	Select string
	Filter string
	Expand string
}

// ListAccessPackages returns the tenant's access packages.
func (s *IGAService) ListAccessPackages(ctx context.Context, p ListAccessPackagesParams) Result {
	slog.Info("IGA_listAccessPackages called")

	params := url.Values{}
	if p.Select != "" {
		params.Set("$select", p.Select)
	}
	if p.Filter != "" {
		params.Set("$filter", p.Filter)
	}
	if p.Expand != "" {
		params.Set("$expand", p.Expand)
	}

	path := entitlementPath + "/accessPackages"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	res, err := s.graph.Do(ctx, driven.GraphRequest{Method: http.MethodGet, Path: path})
	if err != nil {
		return errorf("Error listing access packages: %v", err)
	}
	if !res.OK() {
		return errorf("Error listing access packages: %s", res.ErrorMessage())
	}

	packages := values(res.Body)
	return Result{
		"status":         "success",
		"accessPackages": packages,
		"count":          len(packages),
		"nextLink":       res.Body["@odata.nextLink"],
	}
}

// CreateAccessCatalog creates an access package catalog. State must be
// "published" or "unpublished".
func (s *IGAService) CreateAccessCatalog(ctx context.Context, displayName, description, state string, isExternallyVisible bool) Result {
	slog.Info("IGA_createAccessCatalog called", "display_name", displayName)

	if displayName == "" {
		return errorf("displayName is required and must be a non-empty string")
	}
	if description == "" {
		return errorf("description is required and must be a non-empty string")
	}
	if state != "published" && state != "unpublished" {
		return errorf("state must be either 'published' or 'unpublished'")
	}

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodPost,
		Path:   entitlementPath + "/catalogs",
		Body: map[string]any{
			"displayName":         displayName,
			"description":         description,
			"state":               state,
			"isExternallyVisible": isExternallyVisible,
		},
	})
	if err != nil {
		return errorf("Error creating access catalog: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		return Result{
			"status":     "error",
			"message":    fmt.Sprintf("Failed to create catalog: %s", res.ErrorMessage()),
			"statusCode": res.StatusCode,
		}
	}

	catalogID, _ := res.Body["id"].(string)
	slog.Info("access catalog created", "catalog_id", catalogID)

	return Result{
		"status":    "success",
		"catalog":   res.Body,
		"catalogId": catalogID,
		"message":   fmt.Sprintf("Access catalog %q created successfully", displayName),
	}
}

// CreateAccessPackage creates an access package inside a catalog.
func (s *IGAService) CreateAccessPackage(ctx context.Context, catalogID, displayName, description string) Result {
	slog.Info("IGA_createAccessPackage called", "display_name", displayName)

	if catalogID == "" {
		return errorf("catalogId is required and must be a non-empty string")
	}
	if displayName == "" {
		return errorf("displayName is required and must be a non-empty string")
	}

	body := map[string]any{
		"catalog":     map[string]any{"id": catalogID},
		"displayName": displayName,
	}
	if description != "" {
		body["description"] = description
	}

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodPost,
		Path:   entitlementPath + "/accessPackages",
		Body:   body,
	})
	if err != nil {
		return errorf("Error creating access package: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		return Result{
			"status":     "error",
			"message":    fmt.Sprintf("Failed to create access package: %s", res.ErrorMessage()),
			"statusCode": res.StatusCode,
		}
	}

	packageID, _ := res.Body["id"].(string)
	slog.Info("access package created", "access_package_id", packageID)

	return Result{
		"status":          "success",
		"accessPackage":   res.Body,
		"accessPackageId": packageID,
		"catalogId":       catalogID,
		"message":         fmt.Sprintf("Access package %q created successfully", displayName),
	}
}

// AddResourceGroupToPackage adds an Entra group as a resource to an
// access package in three steps: request the group into the catalog,
// look up the catalog resource id, then link the group's Member role
// to the package. A 409 on either write means the state already
// exists and is treated as success.
func (s *IGAService) AddResourceGroupToPackage(ctx context.Context, catalogID, accessPackageID, groupObjectID string) Result {
	slog.Info("IGA_addResourceGrouptoPackage called", "group_object_id", groupObjectID)

	if catalogID == "" {
		return errorf("catalogId is required and must be a non-empty string")
	}
	if accessPackageID == "" {
		return errorf("accessPackageId is required and must be a non-empty string")
	}
	if groupObjectID == "" {
		return errorf("groupObjectId is required and must be a non-empty string")
	}

	correlationID := uuid.NewString()
	headers := map[string]string{"x-correlation-id": correlationID}
	slog.Info("starting group resource addition", "correlation_id", correlationID)

	// Step 1: request the group into the catalog.
	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method:  http.MethodPost,
		Path:    entitlementPath + "/accessPackageResourceRequests",
		Beta:    true,
		Headers: headers,
		Body: map[string]any{
			"catalogId":     catalogID,
			"requestType":   "AdminAdd",
			"justification": "Adding group resource via IGA tool - Correlation ID: " + correlationID,
			"accessPackageResource": map[string]any{
				"resourceType": "AadGroup",
				"originId":     groupObjectID,
				"originSystem": "AadGroup",
			},
		},
	})
	if err != nil {
		return errorf("Error adding group resource: %v", err)
	}
	switch res.StatusCode {
	case http.StatusCreated:
		slog.Info("group added to catalog", "group_object_id", groupObjectID)
	case http.StatusConflict:
		slog.Info("group already in catalog", "group_object_id", groupObjectID)
	default:
		return Result{
			"status":        "error",
			"step":          "add_to_catalog",
			"message":       fmt.Sprintf("Failed to add group to catalog: %s", res.ErrorMessage()),
			"statusCode":    res.StatusCode,
			"correlationId": correlationID,
		}
	}

	// The catalog processes resource requests asynchronously.
	if err := sleepCtx(ctx, s.resourceWait); err != nil {
		return errorf("Cancelled while waiting for resource processing: %v", err)
	}

	// Step 2: find the catalog resource id for the group.
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("originId eq '%s'", escapeODataLiteral(groupObjectID)))
	lookup, err := s.graph.Do(ctx, driven.GraphRequest{
		Method:  http.MethodGet,
		Path:    entitlementPath + "/catalogs/" + url.PathEscape(catalogID) + "/accessPackageResources?" + params.Encode(),
		Headers: headers,
	})
	if err != nil {
		return errorf("Error retrieving resource from catalog: %v", err)
	}
	if !lookup.OK() {
		return Result{
			"status":        "error",
			"step":          "get_resource_id",
			"message":       fmt.Sprintf("Failed to retrieve resource from catalog: %s", lookup.ErrorMessage()),
			"statusCode":    lookup.StatusCode,
			"correlationId": correlationID,
		}
	}

	resources := values(lookup.Body)
	if len(resources) == 0 {
		return Result{
			"status":        "error",
			"step":          "get_resource_id",
			"message":       fmt.Sprintf("Group resource %s not found in catalog %s", groupObjectID, catalogID),
			"correlationId": correlationID,
		}
	}
	resource, _ := resources[0].(map[string]any)
	resourceID, _ := resource["id"].(string)
	slog.Info("catalog resource found", "resource_id", resourceID)

	// Step 3: link the group's Member role to the access package.
	roleRes, err := s.graph.Do(ctx, driven.GraphRequest{
		Method:  http.MethodPost,
		Path:    entitlementPath + "/accessPackages/" + url.PathEscape(accessPackageID) + "/accessPackageResourceRoleScopes",
		Headers: headers,
		Body: map[string]any{
			"role": map[string]any{
				"originId":     "Member_" + groupObjectID,
				"displayName":  "Member",
				"originSystem": "AadGroup",
				"resource": map[string]any{
					"id":           resourceID,
					"resourceType": "Security Group",
					"originId":     groupObjectID,
					"originSystem": "AadGroup",
				},
			},
			"scope": map[string]any{
				"originId":     groupObjectID,
				"originSystem": "AadGroup",
			},
		},
	})
	if err != nil {
		return errorf("Error linking group role: %v", err)
	}

	data := map[string]any{
		"catalogId":       catalogID,
		"accessPackageId": accessPackageID,
		"groupObjectId":   groupObjectID,
		"resourceId":      resourceID,
		"role":            "Member",
	}

	switch roleRes.StatusCode {
	case http.StatusCreated:
		data["roleId"] = roleRes.Body["id"]
		return Result{
			"status":        "success",
			"message":       "Group resource has been successfully added to access package",
			"data":          data,
			"correlationId": correlationID,
		}
	case http.StatusConflict:
		return Result{
			"status":        "success",
			"message":       "Group resource is already assigned to access package",
			"data":          data,
			"correlationId": correlationID,
		}
	default:
		return Result{
			"status":        "error",
			"step":          "link_role_to_package",
			"message":       fmt.Sprintf("Failed to link group role: %s", roleRes.ErrorMessage()),
			"statusCode":    roleRes.StatusCode,
			"correlationId": correlationID,
		}
	}
}
