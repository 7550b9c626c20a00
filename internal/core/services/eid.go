package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/getset-labs/pox-mcp/internal/core/ports/driven"
)

// EIDService exposes Entra ID directory operations: users, devices,
// groups and group creation.
type EIDService struct {
	graph driven.GraphClient

	// memberDelay spaces out member additions to stay under Graph
	// write throttling. Tests shorten it.
	memberDelay time.Duration
}

// NewEIDService creates the directory service.
func NewEIDService(graph driven.GraphClient) *EIDService {
	return &EIDService{graph: graph, memberDelay: 100 * time.Millisecond}
}

// ListUsers returns all users visible to the token.
func (s *EIDService) ListUsers(ctx context.Context) Result {
	slog.Info("EID_listUsers called")

	res, err := s.graph.Do(ctx, driven.GraphRequest{Method: http.MethodGet, Path: "/users"})
	if err != nil {
		return errorf("Error listing users: %v", err)
	}
	if !res.OK() {
		return errorf("Error listing users: %s", res.ErrorMessage())
	}

	users := values(res.Body)
	return Result{
		"status":  "success",
		"users":   users,
		"count":   len(users),
		"message": fmt.Sprintf("retrieved %d users", len(users)),
	}
}

// GetUser returns a single user by object id or userPrincipalName.
func (s *EIDService) GetUser(ctx context.Context, userID string) Result {
	slog.Info("EID_getUser called", "user_id", userID)

	if userID == "" {
		return errorf("user_id is required")
	}

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodGet,
		Path:   "/users/" + url.PathEscape(userID),
	})
	if err != nil {
		return errorf("Error getting user: %v", err)
	}
	if !res.OK() {
		return errorf("Error getting user: %s", res.ErrorMessage())
	}

	return Result{"status": "success", "user": res.Body}
}

// SearchUsers finds users whose display name, UPN or mail starts with
// query. top is clamped to 1..999.
func (s *EIDService) SearchUsers(ctx context.Context, query string, top int) Result {
	slog.Info("EID_searchUsers called", "query", query, "top", top)

	if query == "" {
		return errorf("query is required")
	}
	top = clampTop(top, 50)

	filter := fmt.Sprintf("startswith(displayName,'%s') or startswith(userPrincipalName,'%s')",
		escapeODataLiteral(query), escapeODataLiteral(query))
	params := url.Values{}
	params.Set("$filter", filter)
	params.Set("$select", "id,displayName,mail,userPrincipalName")
	params.Set("$top", fmt.Sprint(top))

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodGet,
		Path:   "/users?" + params.Encode(),
	})
	if err != nil {
		return errorf("Error searching users: %v", err)
	}
	if !res.OK() {
		return errorf("Error searching users: %s", res.ErrorMessage())
	}

	users := values(res.Body)
	return Result{
		"status": "success",
		"users":  users,
		"count":  len(users),
		"query":  query,
	}
}

// ListDevices returns all directory devices (Entra joined, hybrid
// joined, registered and compliant).
func (s *EIDService) ListDevices(ctx context.Context) Result {
	slog.Info("EID_listDevices called")

	res, err := s.graph.Do(ctx, driven.GraphRequest{Method: http.MethodGet, Path: "/devices"})
	if err != nil {
		return errorf("Error listing devices: %v", err)
	}
	if !res.OK() {
		return errorf("Error listing devices: %s", res.ErrorMessage())
	}

	devices := values(res.Body)
	return Result{
		"status":  "success",
		"devices": devices,
		"count":   len(devices),
	}
}

// GetDevice returns a single directory device.
func (s *EIDService) GetDevice(ctx context.Context, deviceID string) Result {
	slog.Info("EID_getDevice called", "device_id", deviceID)

	if deviceID == "" {
		return errorf("device_id is required")
	}

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodGet,
		Path:   "/devices/" + url.PathEscape(deviceID),
	})
	if err != nil {
		return errorf("Error getting device: %v", err)
	}
	if !res.OK() {
		return errorf("Error getting device: %s", res.ErrorMessage())
	}

	return Result{"status": "success", "device": res.Body}
}

// GetGroups lists groups, top clamped to 1..999.
func (s *EIDService) GetGroups(ctx context.Context, top int) Result {
	slog.Info("EID_getGroups called", "top", top)

	top = clampTop(top, 100)
	params := url.Values{}
	params.Set("$select", "id,displayName,mail,description,groupTypes")
	params.Set("$top", fmt.Sprint(top))

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodGet,
		Path:   "/groups?" + params.Encode(),
	})
	if err != nil {
		return errorf("Error listing groups: %v", err)
	}
	if !res.OK() {
		return errorf("Error listing groups: %s", res.ErrorMessage())
	}

	groups := values(res.Body)
	return Result{
		"status":   "success",
		"groups":   groups,
		"count":    len(groups),
		"nextLink": res.Body["@odata.nextLink"],
	}
}

// GetGroup returns a single group.
func (s *EIDService) GetGroup(ctx context.Context, groupID string) Result {
	slog.Info("EID_getGroup called", "group_id", groupID)

	if groupID == "" {
		return errorf("group_id is required")
	}

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodGet,
		Path:   "/groups/" + url.PathEscape(groupID),
	})
	if err != nil {
		return errorf("Error getting group: %v", err)
	}
	if !res.OK() {
		return errorf("Error getting group: %s", res.ErrorMessage())
	}

	return Result{"status": "success", "group": res.Body}
}

// GetGroupMembers lists the members of a group.
func (s *EIDService) GetGroupMembers(ctx context.Context, groupID string, top int) Result {
	slog.Info("EID_getGroupMembers called", "group_id", groupID, "top", top)

	if groupID == "" {
		return errorf("group_id is required")
	}
	top = clampTop(top, 100)

	params := url.Values{}
	params.Set("$select", "id,displayName,mail,userPrincipalName")
	params.Set("$top", fmt.Sprint(top))

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodGet,
		Path:   "/groups/" + url.PathEscape(groupID) + "/members?" + params.Encode(),
	})
	if err != nil {
		return errorf("Error getting group members: %v", err)
	}
	if !res.OK() {
		return errorf("Error getting group members: %s", res.ErrorMessage())
	}

	members := values(res.Body)
	return Result{
		"status":   "success",
		"members":  members,
		"count":    len(members),
		"group_id": groupID,
		"nextLink": res.Body["@odata.nextLink"],
	}
}

// SearchGroups finds groups whose display name starts with query.
func (s *EIDService) SearchGroups(ctx context.Context, query string, top int) Result {
	slog.Info("EID_searchGroups called", "query", query, "top", top)

	if query == "" {
		return errorf("query is required")
	}
	top = clampTop(top, 50)

	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("startswith(displayName,'%s')", escapeODataLiteral(query)))
	params.Set("$select", "id,displayName,mail,description,groupTypes")
	params.Set("$top", fmt.Sprint(top))

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodGet,
		Path:   "/groups?" + params.Encode(),
	})
	if err != nil {
		return errorf("Error searching groups: %v", err)
	}
	if !res.OK() {
		return errorf("Error searching groups: %s", res.ErrorMessage())
	}

	groups := values(res.Body)
	return Result{
		"status": "success",
		"groups": groups,
		"count":  len(groups),
		"query":  query,
	}
}

// CreateUserGroupsParams are the inputs for CreateUserGroups.
type CreateUserGroupsParams struct {
	GroupName   string
	Description string
	UserIDs     []string
	GroupIDs    []string
	MailEnabled bool
	AddPrefix   bool
}

// CreateUserGroups creates a static-membership security group and adds
// user and nested group members one by one, then verifies the result.
// Individual member failures are collected rather than aborting the
// whole operation.
func (s *EIDService) CreateUserGroups(ctx context.Context, p CreateUserGroupsParams) Result {
	slog.Info("EID_createUserGroups called", "group_name", p.GroupName)

	if p.GroupName == "" {
		return errorf("groupName is required")
	}

	finalName := p.GroupName
	if p.AddPrefix && !strings.HasPrefix(finalName, "POC-") {
		finalName = "POC-" + finalName
	}

	description := p.Description
	if description == "" {
		description = "Security group - " + finalName
	}

	var progress []string
	progress = append(progress, "Step 1: Creating security group "+finalName)

	groupBody := map[string]any{
		"displayName":     finalName,
		"description":     description,
		"mailEnabled":     p.MailEnabled,
		"mailNickname":    mailNickname(finalName),
		"securityEnabled": true,
		// Static membership
		"groupTypes": []string{},
	}

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodPost,
		Path:   "/groups",
		Body:   groupBody,
	})
	if err != nil {
		return errorf("Error creating group: %v", err)
	}
	if !res.OK() {
		return errorf("Error creating group: %s", res.ErrorMessage())
	}

	groupID, _ := res.Body["id"].(string)
	progress = append(progress, "Group created: "+groupID)

	addedUsers, failedUsers := s.addMembers(ctx, groupID, "users", p.UserIDs, &progress)
	addedGroups, failedGroups := s.addMembers(ctx, groupID, "groups", p.GroupIDs, &progress)

	// Verification is best effort; creation already succeeded.
	memberCount := -1
	verify, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodGet,
		Path:   "/groups/" + url.PathEscape(groupID) + "/members?$select=id",
	})
	if err == nil && verify.OK() {
		memberCount = len(values(verify.Body))
		progress = append(progress, fmt.Sprintf("Verified group, total members: %d", memberCount))
	} else {
		progress = append(progress, "Could not verify group membership")
	}

	return Result{
		"status":  "success",
		"success": len(failedUsers) == 0 && len(failedGroups) == 0,
		"group": map[string]any{
			"id":              groupID,
			"displayName":     finalName,
			"description":     description,
			"securityEnabled": true,
			"mailEnabled":     p.MailEnabled,
		},
		"members": map[string]any{
			"users": map[string]any{
				"requested": len(p.UserIDs),
				"added":     len(addedUsers),
				"failed":    len(failedUsers),
			},
			"groups": map[string]any{
				"requested": len(p.GroupIDs),
				"added":     len(addedGroups),
				"failed":    len(failedGroups),
			},
			"verified_total": memberCount,
		},
		"errors": map[string]any{
			"users":  failedUsers,
			"groups": failedGroups,
		},
		"progress": progress,
	}
}

// addMembers adds directory objects of the given kind ("users" or
// "groups") to the group via $ref, one call per member with a short
// delay between calls.
func (s *EIDService) addMembers(
	ctx context.Context, groupID, kind string, ids []string, progress *[]string,
) (added []string, failed []map[string]string) {
	if len(ids) == 0 {
		return nil, nil
	}

	*progress = append(*progress, fmt.Sprintf("Adding %d %s to group", len(ids), kind))

	for i, id := range ids {
		body := map[string]any{
			"@odata.id": "https://graph.microsoft.com/v1.0/" + kind + "/" + id,
		}
		res, err := s.graph.Do(ctx, driven.GraphRequest{
			Method: http.MethodPost,
			Path:   "/groups/" + url.PathEscape(groupID) + "/members/$ref",
			Body:   body,
		})
		switch {
		case err != nil:
			failed = append(failed, map[string]string{"id": id, "error": err.Error()})
		case !res.OK():
			failed = append(failed, map[string]string{"id": id, "error": res.ErrorMessage()})
		default:
			added = append(added, id)
		}

		if i < len(ids)-1 {
			select {
			case <-ctx.Done():
				return added, failed
			case <-time.After(s.memberDelay):
			}
		}
	}

	*progress = append(*progress, fmt.Sprintf("%s added: %d, failed: %d", kind, len(added), len(failed)))
	return added, failed
}

// mailNickname derives a Graph-legal mail nickname: alphanumeric only,
// lowercase, at most 64 characters.
func mailNickname(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
		if b.Len() >= 64 {
			break
		}
	}
	if b.Len() == 0 {
		return "pocgroup"
	}
	return b.String()
}

// escapeODataLiteral doubles single quotes inside an OData string
// literal.
func escapeODataLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
