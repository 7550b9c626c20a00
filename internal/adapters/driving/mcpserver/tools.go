package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/getset-labs/pox-mcp/internal/core/services"
)

// respond renders a service result as indented JSON text content.
// In-band errors ({"status": "error"}) mark the result as failed
// without becoming protocol errors.
func respond(r services.Result) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode tool result: %w", err)
	}

	res := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
	if status, _ := r["status"].(string); status == "error" {
		res.IsError = true
	}
	return res, nil, nil
}

// failure renders a pre-call failure (e.g. the auth gate) with the
// tool name and the arguments that were passed.
func failure(tool string, args any, err error) (*mcp.CallToolResult, any, error) {
	payload := map[string]any{
		"error":     err.Error(),
		"tool":      tool,
		"arguments": args,
	}
	data, mErr := json.MarshalIndent(payload, "", "  ")
	if mErr != nil {
		data = []byte(fmt.Sprintf(`{"error": %q, "tool": %q}`, err.Error(), tool))
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// addTool registers a tool with no authentication requirement.
func addTool[In any](s *Server, name, desc string, fn func(ctx context.Context, in In) services.Result) {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: name, Description: desc},
		func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
			return respond(fn(ctx, in))
		})
}

// addGraphTool registers a tool that talks to Microsoft Graph. Token
// availability is validated before the service runs so auth failures
// surface as a clear error payload instead of a mid-call Graph error.
func addGraphTool[In any](s *Server, name, desc string, fn func(ctx context.Context, in In) services.Result) {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: name, Description: desc},
		func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
			if err := s.auth.RequireAuth(ctx); err != nil {
				return failure(name, in, err)
			}
			return respond(fn(ctx, in))
		})
}

type helloWorldParams struct {
	Name string `json:"name,omitempty" jsonschema:"Name to greet (default: World)"`
}

type echoParams struct {
	Message   string `json:"message" jsonschema:"The message to echo back"`
	Uppercase bool   `json:"uppercase,omitempty" jsonschema:"If true, return the message in uppercase"`
}

type emptyParams struct{}

type userIDParams struct {
	UserID string `json:"user_id" jsonschema:"The ID or userPrincipalName of the user"`
}

type deviceIDParams struct {
	DeviceID string `json:"device_id" jsonschema:"The ID of the device"`
}

type searchParams struct {
	Query string `json:"query" jsonschema:"Search query string to match against display names"`
	Top   int    `json:"top,omitempty" jsonschema:"Maximum number of results to return (default: 50, max: 999)"`
}

type topParams struct {
	Top int `json:"top,omitempty" jsonschema:"Maximum number of results to return"`
}

type groupIDParams struct {
	GroupID string `json:"group_id" jsonschema:"The ID of the group"`
}

type groupMembersParams struct {
	GroupID string `json:"group_id" jsonschema:"The ID of the group"`
	Top     int    `json:"top,omitempty" jsonschema:"Maximum number of members to return (default: 100, max: 999)"`
}

type createUserGroupsParams struct {
	GroupName   string   `json:"groupName" jsonschema:"Name for the group"`
	Description string   `json:"description,omitempty" jsonschema:"Description of the group's purpose and membership"`
	UserIDs     []string `json:"userIds,omitempty" jsonschema:"User object IDs to add as members"`
	GroupIDs    []string `json:"groupIds,omitempty" jsonschema:"Group object IDs to add as nested groups"`
	MailEnabled bool     `json:"mailEnabled,omitempty" jsonschema:"Whether the group is mail-enabled"`
	AddPrefix   bool     `json:"addPrefix,omitempty" jsonschema:"Whether to add a POC- prefix to the group name"`
}

type managedDeviceParams struct {
	DeviceID string `json:"deviceId" jsonschema:"The ID of the managed device"`
}

type prepGSAWinClientParams struct {
	DisplayName string `json:"displayName,omitempty" jsonschema:"Display name for the app in Intune"`
	Description string `json:"description,omitempty" jsonschema:"Description of the GSA Windows client app"`
	Publisher   string `json:"publisher,omitempty" jsonschema:"Publisher name"`
	SASURL      string `json:"sasUrl,omitempty" jsonschema:"Custom SAS URL for the .intunewin installer package"`
}

type appAssignmentParams struct {
	AppID                        string   `json:"appId" jsonschema:"The ID of the Intune mobile app"`
	GroupIDs                     []string `json:"groupIds" jsonschema:"Device group IDs to assign the app to"`
	Intent                       string   `json:"intent,omitempty" jsonschema:"Deployment intent: required, available or uninstall (default: required)"`
	NotificationSettings         string   `json:"notificationSettings,omitempty" jsonschema:"End user notification setting (default: showAll)"`
	RestartGracePeriod           int      `json:"restartGracePeriod,omitempty" jsonschema:"Restart grace period in minutes (default: 1440)"`
	DeliveryOptimizationPriority string   `json:"deliveryOptimizationPriority,omitempty" jsonschema:"Delivery optimization priority (default: notConfigured)"`
}

type listAccessPackagesParams struct {
	Select string `json:"select,omitempty" jsonschema:"OData $select query to return specific properties"`
	Filter string `json:"filter,omitempty" jsonschema:"OData $filter query to narrow results"`
	Expand string `json:"expand,omitempty" jsonschema:"OData $expand query to include related entities"`
}

type createAccessCatalogParams struct {
	DisplayName         string `json:"displayName" jsonschema:"The display name of the access package catalog"`
	Description         string `json:"description" jsonschema:"The description of the access package catalog"`
	State               string `json:"state" jsonschema:"The state of the catalog: published or unpublished"`
	IsExternallyVisible bool   `json:"isExternallyVisible" jsonschema:"Whether external users can request access packages from this catalog"`
}

type createAccessPackageParams struct {
	CatalogID   string `json:"catalogId" jsonschema:"The ID of the catalog this access package belongs to"`
	DisplayName string `json:"displayName" jsonschema:"The display name of the access package"`
	Description string `json:"description,omitempty" jsonschema:"The description of the access package"`
}

type addResourceGroupParams struct {
	CatalogID       string `json:"catalogId" jsonschema:"The Entra access catalog ID"`
	AccessPackageID string `json:"accessPackageId" jsonschema:"The ID of the access package"`
	GroupObjectID   string `json:"groupObjectId" jsonschema:"The object ID of the group to add"`
}

type enableForwardingProfileParams struct {
	ForwardingProfileID string `json:"forwarding_profile_id" jsonschema:"ID of the forwarding profile to enable or disable"`
	State               string `json:"state,omitempty" jsonschema:"Target state, enabled or disabled (default: enabled)"`
}

type createFilteringPolicyParams struct {
	Name          string   `json:"name,omitempty" jsonschema:"Name of the filtering policy"`
	Description   string   `json:"description,omitempty" jsonschema:"Description of the filtering policy"`
	WebCategories []string `json:"webCategories,omitempty" jsonschema:"Web category names to filter (default: ArtificialIntelligence)"`
}

type createFilteringProfileParams struct {
	Name        string `json:"name,omitempty" jsonschema:"Name of the filtering profile"`
	Description string `json:"description,omitempty" jsonschema:"Description of the filtering profile"`
	State       string `json:"state,omitempty" jsonschema:"Initial state of the profile (default: enabled)"`
	Priority    int    `json:"priority,omitempty" jsonschema:"Priority of the profile (default: 1000)"`
}

type linkPolicyParams struct {
	FilteringProfileID string `json:"filtering_profile_id" jsonschema:"ID of the filtering profile"`
	FilteringPolicyID  string `json:"filtering_policy_id" jsonschema:"ID of the filtering policy to link"`
	Priority           int    `json:"priority,omitempty" jsonschema:"Priority of the link (default: 1000)"`
}

type createCAPolicyParams struct {
	FilteringProfileID  string   `json:"filtering_profile_id" jsonschema:"ID of the filtering profile to reference"`
	DisplayName         string   `json:"displayName,omitempty" jsonschema:"Display name of the conditional access policy"`
	IncludeUsers        []string `json:"includeUsers,omitempty" jsonschema:"User IDs to include (default: None)"`
	IncludeGroups       []string `json:"includeGroups,omitempty" jsonschema:"Group IDs to include"`
	IncludeApplications []string `json:"includeApplications,omitempty" jsonschema:"Application IDs to include (default: the Global Secure Access applications)"`
}

type tlsOnboardingParams struct {
	Name             string `json:"name,omitempty" jsonschema:"Certificate name (max 12 characters, alphanumeric only)"`
	CommonName       string `json:"commonName,omitempty" jsonschema:"Common name (max 12 characters, alphanumeric and spaces)"`
	OrganizationName string `json:"organizationName,omitempty" jsonschema:"Organization name (max 12 characters, alphanumeric only)"`
	CertOutputDir    string `json:"cert_output_dir,omitempty" jsonschema:"Directory for certificate storage (default: ./certs)"`
	MaxRetries       int    `json:"max_retries,omitempty" jsonschema:"Maximum retry attempts for transient failures (default: 5)"`
}

type internetAccessPOCParams struct {
	ForwardingProfileID         string   `json:"forwarding_profile_id" jsonschema:"ID of the Internet Access forwarding profile"`
	FilteringPolicyName         string   `json:"filtering_policy_name,omitempty" jsonschema:"Name of the filtering policy to create"`
	FilteringPolicyDescription  string   `json:"filtering_policy_description,omitempty" jsonschema:"Description of the filtering policy"`
	FilteringProfileName        string   `json:"filtering_profile_name,omitempty" jsonschema:"Name of the filtering profile to create"`
	FilteringProfileDescription string   `json:"filtering_profile_description,omitempty" jsonschema:"Description of the filtering profile"`
	FilteringProfileState       string   `json:"filtering_profile_state,omitempty" jsonschema:"Initial state of the filtering profile (default: enabled)"`
	FilteringProfilePriority    int      `json:"filtering_profile_priority,omitempty" jsonschema:"Priority of the filtering profile (default: 1000)"`
	LinkPriority                int      `json:"link_priority,omitempty" jsonschema:"Priority of the policy link (default: 1000)"`
	CreateCAPolicy              *bool    `json:"create_ca_policy,omitempty" jsonschema:"Whether to create the conditional access policy (default: true)"`
	CAPolicyDisplayName         string   `json:"ca_policy_display_name,omitempty" jsonschema:"Display name of the conditional access policy"`
	CAPolicyIncludeUsers        []string `json:"ca_policy_include_users,omitempty" jsonschema:"User IDs to include in the conditional access policy"`
	CAPolicyIncludeGroups       []string `json:"ca_policy_include_groups,omitempty" jsonschema:"Group IDs to include in the conditional access policy"`
	CAPolicyIncludeApplications []string `json:"ca_policy_include_applications,omitempty" jsonschema:"Application IDs to include in the conditional access policy"`
}

// registerTools wires every tool onto the MCP server.
func (s *Server) registerTools() {
	// Utility tools, no Graph access.
	addTool(s, "hello_world", "Simple greeting tool for connectivity testing",
		func(_ context.Context, in helloWorldParams) services.Result {
			return services.HelloWorld(in.Name)
		})
	addTool(s, "echo", "Echo back the provided message with metadata",
		func(_ context.Context, in echoParams) services.Result {
			return services.Echo(in.Message, in.Uppercase)
		})

	// Diagnostics handles disabled auth in-band, so it is not gated.
	addTool(s, "check_token_permissions", "Check which Microsoft Graph permissions the current access token carries",
		func(ctx context.Context, _ emptyParams) services.Result {
			return s.svcs.Diagnostics.CheckTokenPermissions(ctx)
		})

	// Entra ID directory.
	addGraphTool(s, "EID_listUsers", "List all users in Microsoft Entra ID",
		func(ctx context.Context, _ emptyParams) services.Result {
			return s.svcs.EID.ListUsers(ctx)
		})
	addGraphTool(s, "EID_getUser", "Get a specific user by ID or userPrincipalName from Microsoft Entra ID",
		func(ctx context.Context, in userIDParams) services.Result {
			return s.svcs.EID.GetUser(ctx, in.UserID)
		})
	addGraphTool(s, "EID_searchUsers", "Search users by display name or userPrincipalName in Microsoft Entra ID",
		func(ctx context.Context, in searchParams) services.Result {
			return s.svcs.EID.SearchUsers(ctx, in.Query, in.Top)
		})
	addGraphTool(s, "EID_listDevices", "List all devices registered in Microsoft Entra ID",
		func(ctx context.Context, _ emptyParams) services.Result {
			return s.svcs.EID.ListDevices(ctx)
		})
	addGraphTool(s, "EID_getDevice", "Get a specific device by ID from Microsoft Entra ID",
		func(ctx context.Context, in deviceIDParams) services.Result {
			return s.svcs.EID.GetDevice(ctx, in.DeviceID)
		})
	addGraphTool(s, "EID_getGroups", "List groups in Microsoft Entra ID",
		func(ctx context.Context, in topParams) services.Result {
			return s.svcs.EID.GetGroups(ctx, in.Top)
		})
	addGraphTool(s, "EID_getGroup", "Get a specific group by ID from Microsoft Entra ID",
		func(ctx context.Context, in groupIDParams) services.Result {
			return s.svcs.EID.GetGroup(ctx, in.GroupID)
		})
	addGraphTool(s, "EID_getGroupMembers", "List the members of a group in Microsoft Entra ID",
		func(ctx context.Context, in groupMembersParams) services.Result {
			return s.svcs.EID.GetGroupMembers(ctx, in.GroupID, in.Top)
		})
	addGraphTool(s, "EID_searchGroups", "Search groups by display name in Microsoft Entra ID",
		func(ctx context.Context, in searchParams) services.Result {
			return s.svcs.EID.SearchGroups(ctx, in.Query, in.Top)
		})
	addGraphTool(s, "EID_createUserGroups", "Create an Entra ID security group with users and nested groups as members",
		func(ctx context.Context, in createUserGroupsParams) services.Result {
			return s.svcs.EID.CreateUserGroups(ctx, services.CreateUserGroupsParams{
				GroupName:   in.GroupName,
				Description: in.Description,
				UserIDs:     in.UserIDs,
				GroupIDs:    in.GroupIDs,
				MailEnabled: in.MailEnabled,
				AddPrefix:   in.AddPrefix,
			})
		})

	// Intune device management.
	addGraphTool(s, "IN_listIntuneManagedDevices", "List managed devices in Microsoft Intune",
		func(ctx context.Context, in topParams) services.Result {
			return s.svcs.Intune.ListManagedDevices(ctx, in.Top)
		})
	addGraphTool(s, "IN_getManagedDeviceDetails", "Get detailed information about a managed device in Microsoft Intune",
		func(ctx context.Context, in managedDeviceParams) services.Result {
			return s.svcs.Intune.GetManagedDeviceDetails(ctx, in.DeviceID)
		})
	addGraphTool(s, "IN_listDeviceCompliancePolicies", "List device compliance policies in Microsoft Intune",
		func(ctx context.Context, _ emptyParams) services.Result {
			return s.svcs.Intune.ListCompliancePolicies(ctx)
		})
	addGraphTool(s, "IN_listDeviceConfigurationProfiles", "List device configuration profiles in Microsoft Intune",
		func(ctx context.Context, _ emptyParams) services.Result {
			return s.svcs.Intune.ListConfigurationProfiles(ctx)
		})
	addGraphTool(s, "IN_syncManagedDevice", "Trigger a sync for a managed device in Microsoft Intune",
		func(ctx context.Context, in managedDeviceParams) services.Result {
			return s.svcs.Intune.SyncManagedDevice(ctx, in.DeviceID)
		})
	addGraphTool(s, "IN_prepGSAWinClient", "Download the Global Secure Access Windows client and upload it to Microsoft Intune as a Win32 app",
		func(ctx context.Context, in prepGSAWinClientParams) services.Result {
			return s.svcs.Intune.PrepGSAWinClient(ctx, services.PrepGSAWinClientParams{
				DisplayName: in.DisplayName,
				Description: in.Description,
				Publisher:   in.Publisher,
				SASURL:      in.SASURL,
			})
		})
	addGraphTool(s, "IN_intuneAppAssignment", "Assign device groups to an Intune Win32 application with deployment settings",
		func(ctx context.Context, in appAssignmentParams) services.Result {
			return s.svcs.Intune.AppAssignment(ctx, services.AppAssignmentParams{
				AppID:                        in.AppID,
				GroupIDs:                     in.GroupIDs,
				Intent:                       in.Intent,
				NotificationSettings:         in.NotificationSettings,
				RestartGracePeriod:           in.RestartGracePeriod,
				DeliveryOptimizationPriority: in.DeliveryOptimizationPriority,
			})
		})

	// Identity governance.
	addGraphTool(s, "IGA_listAccessPackages", "List access packages from Entra ID entitlement management",
		func(ctx context.Context, in listAccessPackagesParams) services.Result {
			return s.svcs.IGA.ListAccessPackages(ctx, services.ListAccessPackagesParams{
				Select: in.Select,
				Filter: in.Filter,
				Expand: in.Expand,
			})
		})
	addGraphTool(s, "IGA_createAccessCatalog", "Create an access package catalog in Entra ID entitlement management",
		func(ctx context.Context, in createAccessCatalogParams) services.Result {
			return s.svcs.IGA.CreateAccessCatalog(ctx, in.DisplayName, in.Description, in.State, in.IsExternallyVisible)
		})
	addGraphTool(s, "IGA_createAccessPackage", "Create an access package in Entra ID entitlement management",
		func(ctx context.Context, in createAccessPackageParams) services.Result {
			return s.svcs.IGA.CreateAccessPackage(ctx, in.CatalogID, in.DisplayName, in.Description)
		})
	addGraphTool(s, "IGA_addResourceGrouptoPackage", "Add an Entra group as a resource to an existing access package",
		func(ctx context.Context, in addResourceGroupParams) services.Result {
			return s.svcs.IGA.AddResourceGroupToPackage(ctx, in.CatalogID, in.AccessPackageID, in.GroupObjectID)
		})

	// Internet Access / Global Secure Access.
	addGraphTool(s, "IA_checkInternetAccessForwardingProfile", "Check whether the Internet Access forwarding profile is enabled",
		func(ctx context.Context, _ emptyParams) services.Result {
			return s.svcs.Network.CheckForwardingProfile(ctx)
		})
	addGraphTool(s, "IA_enableInternetAccessForwardingProfile", "Enable or disable the Internet Access forwarding profile",
		func(ctx context.Context, in enableForwardingProfileParams) services.Result {
			return s.svcs.Network.EnableForwardingProfile(ctx, in.ForwardingProfileID, in.State)
		})
	addGraphTool(s, "IA_createFilteringPolicy", "Create a web content filtering policy for one or more web categories",
		func(ctx context.Context, in createFilteringPolicyParams) services.Result {
			return s.svcs.Network.CreateFilteringPolicy(ctx, in.Name, in.Description, in.WebCategories)
		})
	addGraphTool(s, "IA_createFilteringProfile", "Create a web content filtering profile",
		func(ctx context.Context, in createFilteringProfileParams) services.Result {
			return s.svcs.Network.CreateFilteringProfile(ctx, in.Name, in.Description, in.State, in.Priority)
		})
	addGraphTool(s, "IA_linkPolicyToFilteringProfile", "Link a filtering policy to a filtering profile",
		func(ctx context.Context, in linkPolicyParams) services.Result {
			return s.svcs.Network.LinkPolicyToProfile(ctx, in.FilteringProfileID, in.FilteringPolicyID, in.Priority)
		})
	addGraphTool(s, "IA_createConditionalAccessPolicy", "Create a conditional access policy referencing a filtering profile",
		func(ctx context.Context, in createCAPolicyParams) services.Result {
			return s.svcs.Network.CreateConditionalAccessPolicy(ctx, services.ConditionalAccessPolicyParams{
				FilteringProfileID:  in.FilteringProfileID,
				DisplayName:         in.DisplayName,
				IncludeUsers:        in.IncludeUsers,
				IncludeGroups:       in.IncludeGroups,
				IncludeApplications: in.IncludeApplications,
			})
		})
	addGraphTool(s, "IA_TLSPOCV2", "Run the automated TLS inspection onboarding workflow with retry logic and root CA storage",
		func(ctx context.Context, in tlsOnboardingParams) services.Result {
			return s.svcs.Network.TLSOnboarding(ctx, services.TLSOnboardingParams{
				Name:             in.Name,
				CommonName:       in.CommonName,
				OrganizationName: in.OrganizationName,
				CertOutputDir:    in.CertOutputDir,
				MaxRetries:       in.MaxRetries,
			})
		})
	addGraphTool(s, "IA_internetAccessPoc", "Run the end-to-end Internet Access web content filtering POC setup",
		func(ctx context.Context, in internetAccessPOCParams) services.Result {
			createCA := true
			if in.CreateCAPolicy != nil {
				createCA = *in.CreateCAPolicy
			}
			return s.svcs.Network.InternetAccessPOC(ctx, services.InternetAccessPOCParams{
				ForwardingProfileID:         in.ForwardingProfileID,
				FilteringPolicyName:         in.FilteringPolicyName,
				FilteringPolicyDescription:  in.FilteringPolicyDescription,
				FilteringProfileName:        in.FilteringProfileName,
				FilteringProfileDescription: in.FilteringProfileDescription,
				FilteringProfileState:       in.FilteringProfileState,
				FilteringProfilePriority:    in.FilteringProfilePriority,
				LinkPriority:                in.LinkPriority,
				CreateCAPolicy:              createCA,
				CAPolicyDisplayName:         in.CAPolicyDisplayName,
				CAPolicyIncludeUsers:        in.CAPolicyIncludeUsers,
				CAPolicyIncludeGroups:       in.CAPolicyIncludeGroups,
				CAPolicyIncludeApplications: in.CAPolicyIncludeApplications,
			})
		})

	// POC automation.
	addGraphTool(s, "GovernInternetAccessPOC", "Create the Internet Access governance group, catalog and access package for the POC workflow",
		func(ctx context.Context, _ emptyParams) services.Result {
			return s.svcs.POC.GovernInternetAccessPOC(ctx)
		})
}
