package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/getset-labs/pox-mcp/internal/core/ports/driven"
	"github.com/getset-labs/pox-mcp/internal/tlscert"
)

// Defaults for the Internet Access POC workflows.
const (
	defaultFilteringPolicyName  = "POC-Monitor AI Access"
	defaultFilteringPolicyDesc  = "Monitor access to AI"
	defaultFilteringProfileName = "POC-Monitor AI Access Profile"
	defaultFilteringProfileDesc = "Profile for monitoring AI access"
	defaultCAPolicyName         = "POC-Monitor AI conditional access policy"
	defaultCertName             = "POCEntCA"
	defaultCertCommonName       = "POCRoot"
	defaultCertOrganization     = "POCLtd"
	defaultCertOutputDir        = "./certs"
	defaultTLSMaxRetries        = 5
)

// Global Secure Access first-party application ids, targeted by the
// default conditional access policy.
var gsaApplicationIDs = []string{
	"c08f52c9-8f03-4558-a0ea-9a4c878cf343",
	"5dc48733-b5df-475c-a49b-fa307ef00853",
}

var (
	alphanumeric          = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	alphanumericWithSpace = regexp.MustCompile(`^[A-Za-z0-9 ]+$`)
)

// NetworkAccessService exposes Entra Global Secure Access Internet
// Access operations: forwarding profiles, web content filtering,
// conditional access and TLS inspection onboarding.
type NetworkAccessService struct {
	graph driven.GraphClient

	// backoffUnit scales the exponential retry delays. Tests shorten
	// it.
	backoffUnit time.Duration
	// csrWait is the pause between CSR creation and signing upload.
	csrWait time.Duration
}

// NewNetworkAccessService creates the Internet Access service.
func NewNetworkAccessService(graph driven.GraphClient) *NetworkAccessService {
	return &NetworkAccessService{
		graph:       graph,
		backoffUnit: time.Second,
		csrWait:     5 * time.Second,
	}
}

// CheckForwardingProfile reports the state of the Internet Access
// forwarding profile.
func (s *NetworkAccessService) CheckForwardingProfile(ctx context.Context) Result {
	slog.Info("IA_checkInternetAccessForwardingProfile called")

	params := url.Values{}
	params.Set("$filter", "trafficForwardingType eq 'internet'")

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodGet,
		Path:   "/networkAccess/forwardingProfiles?" + params.Encode(),
		Beta:   true,
	})
	if err != nil {
		return errorf("Error checking forwarding profile: %v", err)
	}
	if !res.OK() {
		return errorf("Error checking forwarding profile: %s", res.ErrorMessage())
	}

	profiles := values(res.Body)
	if len(profiles) == 0 {
		return Result{"status": "not_found", "message": "No Internet Access Forwarding Profile found."}
	}

	profile, _ := profiles[0].(map[string]any)
	return Result{
		"status":  "success",
		"name":    profile["name"],
		"state":   profile["state"],
		"id":      profile["id"],
		"message": fmt.Sprintf("Internet Access forwarding profile %v is %v", profile["name"], profile["state"]),
	}
}

// EnableForwardingProfile sets the forwarding profile state, skipping
// the write when it is already in the target state.
func (s *NetworkAccessService) EnableForwardingProfile(ctx context.Context, profileID, state string) Result {
	slog.Info("IA_enableInternetAccessForwardingProfile called", "profile_id", profileID, "state", state)

	if profileID == "" {
		return errorf("forwarding_profile_id is required")
	}
	if state == "" {
		state = "enabled"
	}

	path := "/networkAccess/forwardingProfiles/" + url.PathEscape(profileID)
	current, err := s.graph.Do(ctx, driven.GraphRequest{Method: http.MethodGet, Path: path, Beta: true})
	if err != nil {
		return errorf("Error reading forwarding profile: %v", err)
	}
	if current.StatusCode == http.StatusNotFound {
		return Result{"status": "not_found", "message": "No Internet Access Forwarding Profile found with the specified ID."}
	}
	if !current.OK() {
		return errorf("Error reading forwarding profile: %s", current.ErrorMessage())
	}

	name := current.Body["name"]
	if current.Body["state"] == state {
		return Result{
			"status":  "already_set",
			"name":    name,
			"id":      current.Body["id"],
			"message": fmt.Sprintf("Internet Access forwarding profile %v is already %s", name, state),
		}
	}

	patch, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodPatch,
		Path:   path,
		Beta:   true,
		Body:   map[string]any{"state": state},
	})
	if err != nil {
		return errorf("Error updating forwarding profile: %v", err)
	}
	if !patch.OK() {
		return errorf("Error updating forwarding profile: %s", patch.ErrorMessage())
	}

	return Result{
		"status":  "success",
		"name":    name,
		"id":      current.Body["id"],
		"message": fmt.Sprintf("Internet Access forwarding profile %v has been %s", name, state),
	}
}

// CreateFilteringPolicy creates an allow policy for the given web
// categories.
func (s *NetworkAccessService) CreateFilteringPolicy(ctx context.Context, name, description string, webCategories []string) Result {
	if name == "" {
		name = defaultFilteringPolicyName
	}
	if description == "" {
		description = defaultFilteringPolicyDesc
	}
	if len(webCategories) == 0 {
		webCategories = []string{"ArtificialIntelligence"}
	}

	slog.Info("IA_createFilteringPolicy called", "name", name, "categories", webCategories)

	destinations := make([]map[string]any, 0, len(webCategories))
	for _, category := range webCategories {
		destinations = append(destinations, map[string]any{
			"@odata.type": "#microsoft.graph.networkaccess.webCategory",
			"name":        category,
		})
	}

	ruleName := name
	if len(webCategories) > 1 {
		ruleName = strings.Join(webCategories, " and ") + " categories"
	}

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodPost,
		Path:   "/networkAccess/filteringPolicies",
		Beta:   true,
		Body: map[string]any{
			"@odata.type": "#microsoft.graph.networkaccess.filteringPolicy",
			"name":        name,
			"description": description,
			"action":      "allow",
			"policyRules": []map[string]any{{
				"@odata.type":  "#microsoft.graph.networkaccess.webCategoryFilteringRule",
				"name":         ruleName,
				"ruleType":     "webCategory",
				"destinations": destinations,
			}},
		},
	})
	if err != nil {
		return errorf("Error creating filtering policy: %v", err)
	}
	if !res.OK() {
		return errorf("Error creating filtering policy: %s", res.ErrorMessage())
	}

	return Result{
		"status":      "success",
		"policy_name": res.Body["name"],
		"policy_id":   res.Body["id"],
		"message":     fmt.Sprintf("Filtering policy created for categories: %s", strings.Join(webCategories, ", ")),
	}
}

// CreateFilteringProfile creates a filtering profile.
func (s *NetworkAccessService) CreateFilteringProfile(ctx context.Context, name, description, state string, priority int) Result {
	if name == "" {
		name = defaultFilteringProfileName
	}
	if description == "" {
		description = defaultFilteringProfileDesc
	}
	if state == "" {
		state = "enabled"
	}
	if priority == 0 {
		priority = 1000
	}

	slog.Info("IA_createFilteringProfile called", "name", name, "state", state)

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodPost,
		Path:   "/networkAccess/filteringProfiles",
		Beta:   true,
		Body: map[string]any{
			"name":        name,
			"description": description,
			"state":       state,
			"priority":    priority,
		},
	})
	if err != nil {
		return errorf("Error creating filtering profile: %v", err)
	}
	if !res.OK() {
		return errorf("Error creating filtering profile: %s", res.ErrorMessage())
	}

	return Result{
		"status":       "success",
		"profile_name": res.Body["name"],
		"profile_id":   res.Body["id"],
		"message":      fmt.Sprintf("Filtering profile %v created", res.Body["name"]),
	}
}

// LinkPolicyToProfile attaches a filtering policy to a filtering
// profile with logging enabled.
func (s *NetworkAccessService) LinkPolicyToProfile(ctx context.Context, profileID, policyID string, priority int) Result {
	slog.Info("IA_linkPolicyToFilteringProfile called", "profile_id", profileID, "policy_id", policyID)

	if profileID == "" {
		return errorf("filtering_profile_id is required")
	}
	if policyID == "" {
		return errorf("filtering_policy_id is required")
	}
	if priority == 0 {
		priority = 1000
	}

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodPost,
		Path:   "/networkAccess/filteringProfiles/" + url.PathEscape(profileID) + "/policies",
		Beta:   true,
		Body: map[string]any{
			"@odata.type":  "#microsoft.graph.networkaccess.filteringPolicyLink",
			"state":        "enabled",
			"priority":     priority,
			"loggingState": "enabled",
			"policy": map[string]any{
				"id":          policyID,
				"@odata.type": "#microsoft.graph.networkaccess.filteringPolicy",
			},
		},
	})
	if err != nil {
		return errorf("Error linking filtering policy to profile: %v", err)
	}
	if !res.OK() {
		return errorf("Error linking filtering policy to profile: %s", res.ErrorMessage())
	}

	return Result{
		"status":     "success",
		"profile_id": profileID,
		"policy_id":  policyID,
		"link_id":    res.Body["id"],
		"message":    "Filtering policy linked to profile",
	}
}

// ConditionalAccessPolicyParams are the inputs for
// CreateConditionalAccessPolicy. Zero values fall back to the POC
// defaults: no users, the GSA first-party applications, report-only
// enforcement.
type ConditionalAccessPolicyParams struct {
	FilteringProfileID  string
	DisplayName         string
	IncludeUsers        []string
	IncludeGroups       []string
	IncludeApplications []string
}

// CreateConditionalAccessPolicy creates a report-only conditional
// access policy that routes the GSA applications through the
// filtering profile.
func (s *NetworkAccessService) CreateConditionalAccessPolicy(ctx context.Context, p ConditionalAccessPolicyParams) Result {
	slog.Info("IA_createConditionalAccessPolicy called", "profile_id", p.FilteringProfileID, "name", p.DisplayName)

	if p.FilteringProfileID == "" {
		return errorf("filtering_profile_id is required")
	}
	if p.DisplayName == "" {
		p.DisplayName = defaultCAPolicyName
	}
	if len(p.IncludeUsers) == 0 {
		p.IncludeUsers = []string{"None"}
	}
	if len(p.IncludeApplications) == 0 {
		p.IncludeApplications = gsaApplicationIDs
	}

	users := map[string]any{"includeUsers": p.IncludeUsers}
	if len(p.IncludeGroups) > 0 {
		users["includeGroups"] = p.IncludeGroups
	}

	res, err := s.graph.Do(ctx, driven.GraphRequest{
		Method: http.MethodPost,
		Path:   "/identity/conditionalAccess/policies",
		Beta:   true,
		Body: map[string]any{
			"displayName": p.DisplayName,
			"state":       "enabledForReportingButNotEnforced",
			"conditions": map[string]any{
				"clientAppTypes": []string{"all"},
				"applications":   map[string]any{"includeApplications": p.IncludeApplications},
				"users":          users,
			},
			"sessionControls": map[string]any{
				"networkAccessSecurity": map[string]any{
					"policyId":  p.FilteringProfileID,
					"isEnabled": true,
				},
				"globalSecureAccessFilteringProfile": map[string]any{
					"profileId": p.FilteringProfileID,
					"isEnabled": true,
				},
			},
		},
	})
	if err != nil {
		return errorf("Error creating conditional access policy: %v", err)
	}
	if !res.OK() {
		return errorf("Error creating conditional access policy: %s", res.ErrorMessage())
	}

	return Result{
		"status":      "success",
		"policy_name": res.Body["displayName"],
		"policy_id":   res.Body["id"],
		"message":     fmt.Sprintf("Conditional access policy %v created", res.Body["displayName"]),
	}
}

// TLSOnboardingParams are the inputs for TLSOnboarding. Zero values
// fall back to the POC certificate defaults.
type TLSOnboardingParams struct {
	Name             string
	CommonName       string
	OrganizationName string
	CertOutputDir    string
	MaxRetries       int
}

// TLSOnboarding runs the TLS inspection onboarding workflow: request
// a CSR from Graph, sign it against a locally generated root CA,
// upload the certificate chain, and store the root CA for client
// deployment. Transient API failures are retried with exponential
// backoff.
func (s *NetworkAccessService) TLSOnboarding(ctx context.Context, p TLSOnboardingParams) Result {
	if p.Name == "" {
		p.Name = defaultCertName
	}
	if p.CommonName == "" {
		p.CommonName = defaultCertCommonName
	}
	if p.OrganizationName == "" {
		p.OrganizationName = defaultCertOrganization
	}
	if p.CertOutputDir == "" {
		p.CertOutputDir = defaultCertOutputDir
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultTLSMaxRetries
	}

	slog.Info("IA_TLSPOCV2 called", "name", p.Name)
	start := time.Now()

	var workflowLog []map[string]any
	retryCounts := map[string]int{"csr_creation": 0, "signing_upload": 0}
	logStep := func(step, status, details string, retry int) {
		workflowLog = append(workflowLog, map[string]any{
			"timestamp":   time.Now().Format(time.RFC3339),
			"step":        step,
			"status":      status,
			"details":     details,
			"retry_count": retry,
		})
		slog.Info("TLS onboarding step", "step", step, "status", status, "retry", retry)
	}

	name := strings.TrimSpace(p.Name)
	commonName := strings.TrimSpace(p.CommonName)
	organization := strings.TrimSpace(p.OrganizationName)

	if errs := validateCertFields(name, commonName, organization); len(errs) > 0 {
		return Result{
			"status":            "error",
			"message":           "Certificate field validation failed: " + strings.Join(errs, "; "),
			"validation_errors": errs,
		}
	}

	logStep("workflow_start", "initiated", "Starting TLS onboarding workflow for "+name, 0)

	// Step 1: request the CSR from Graph.
	tlsPath := "/networkAccess/tls/externalCertificateAuthorityCertificates"
	var certificateID, csrContent string
	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		res, err := s.graph.Do(ctx, driven.GraphRequest{
			Method: http.MethodPost,
			Path:   tlsPath,
			Beta:   true,
			Body: map[string]any{
				"@odata.type":      "#microsoft.graph.networkaccess.externalCertificateAuthorityCertificate",
				"name":             name,
				"commonName":       commonName,
				"organizationName": organization,
			},
		})
		switch {
		case err != nil:
			retryCounts["csr_creation"]++
			logStep("csr_generation", "exception", err.Error(), attempt+1)
		case !res.OK():
			retryCounts["csr_creation"]++
			logStep("csr_generation", "retry_needed", res.ErrorMessage(), attempt+1)
		default:
			certificateID, _ = res.Body["id"].(string)
			if certificateID == "" {
				retryCounts["csr_creation"]++
				logStep("csr_generation", "retry_needed", "no certificate id in response", attempt+1)
			} else {
				csrContent, _ = res.Body["certificateSigningRequest"].(string)
				logStep("csr_generation", "success", "CSR created with ID "+certificateID, attempt)
			}
		}
		if certificateID != "" {
			break
		}
		if attempt == p.MaxRetries-1 {
			return Result{
				"status":       "error",
				"step_failed":  "csr_generation",
				"message":      fmt.Sprintf("CSR creation failed after %d attempts", p.MaxRetries),
				"workflow_log": workflowLog,
				"retry_counts": retryCounts,
			}
		}
		if err := s.backoff(ctx, attempt); err != nil {
			return errorf("Cancelled during CSR retry: %v", err)
		}
	}

	// Graph needs a moment before the certificate accepts an upload.
	if err := sleepCtx(ctx, s.csrWait); err != nil {
		return errorf("Cancelled while waiting for certificate readiness: %v", err)
	}

	// Step 2: sign the CSR and upload the chain.
	logStep("signing_upload", "starting", "Signing certificate and uploading", 0)
	var chain *tlscert.SignedChain
	uploaded := false
	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		var err error
		chain, err = tlscert.SignCSR(csrContent, commonName, organization)
		if err == nil {
			var res *driven.GraphResult
			res, err = s.graph.Do(ctx, driven.GraphRequest{
				Method: http.MethodPatch,
				Path:   tlsPath + "/" + url.PathEscape(certificateID),
				Beta:   true,
				Body: map[string]any{
					"certificate": chain.CertificatePEM,
					"chain":       chain.RootCAPEM,
				},
			})
			if err == nil && !res.OK() {
				err = fmt.Errorf("%s", res.ErrorMessage())
			}
		}
		if err == nil {
			uploaded = true
			logStep("signing_upload", "success", "Certificate signed and uploaded", attempt)
			break
		}

		retryCounts["signing_upload"]++
		logStep("signing_upload", "exception", err.Error(), attempt+1)
		if attempt == p.MaxRetries-1 {
			return Result{
				"status":       "error",
				"step_failed":  "signing_upload",
				"message":      fmt.Sprintf("Certificate signing/upload failed after %d attempts: %v", p.MaxRetries, err),
				"workflow_log": workflowLog,
				"retry_counts": retryCounts,
			}
		}
		if err := s.backoff(ctx, attempt); err != nil {
			return errorf("Cancelled during signing retry: %v", err)
		}
	}
	if !uploaded || chain == nil {
		return errorf("Certificate signing/upload did not complete")
	}

	// Step 3: store the root CA for client deployment.
	logStep("root_ca_download", "starting", "Storing root CA certificate", 0)
	files, err := writeCertFiles(p.CertOutputDir, chain)
	if err != nil {
		return Result{
			"status":       "error",
			"step_failed":  "root_ca_download",
			"message":      fmt.Sprintf("Failed to save root CA certificate: %v", err),
			"workflow_log": workflowLog,
		}
	}
	logStep("root_ca_download", "success", fmt.Sprintf("Root CA certificate saved in %d formats", len(files)), 0)

	duration := int(time.Since(start).Seconds())
	logStep("workflow_completion", "success", fmt.Sprintf("Workflow completed in %d seconds", duration), 0)

	totalRetries := retryCounts["csr_creation"] + retryCounts["signing_upload"]
	return Result{
		"status":                    "success",
		"workflow_duration_seconds": duration,
		"csr_generation": map[string]any{
			"status":           "success",
			"certificate_id":   certificateID,
			"certificate_name": name,
			"common_name":      commonName,
			"organization":     organization,
		},
		"signing_upload": map[string]any{
			"status":               "success",
			"certificate_uploaded": true,
		},
		"root_ca_download": map[string]any{
			"status":           "success",
			"files_created":    files,
			"output_directory": p.CertOutputDir,
		},
		"retry_metrics": map[string]any{
			"total_retries":          totalRetries,
			"retry_breakdown":        retryCounts,
			"max_retries_configured": p.MaxRetries,
		},
		"workflow_log": workflowLog,
		"message":      fmt.Sprintf("TLS onboarding complete. Deploy %s to client devices before TLS inspection will work.", files["cer"]),
	}
}

// InternetAccessPOCParams are the inputs for InternetAccessPOC.
type InternetAccessPOCParams struct {
	ForwardingProfileID         string
	FilteringPolicyName         string
	FilteringPolicyDescription  string
	FilteringProfileName        string
	FilteringProfileDescription string
	FilteringProfileState       string
	FilteringProfilePriority    int
	LinkPriority                int
	CreateCAPolicy              bool
	CAPolicyDisplayName         string
	CAPolicyIncludeUsers        []string
	CAPolicyIncludeGroups       []string
	CAPolicyIncludeApplications []string
}

// InternetAccessPOC chains the web content filtering setup end to end:
// enable the forwarding profile, create a filtering policy and
// profile, link them, and optionally create the conditional access
// policy. Individual step outcomes are reported even when later steps
// are skipped.
func (s *NetworkAccessService) InternetAccessPOC(ctx context.Context, p InternetAccessPOCParams) Result {
	slog.Info("IA_internetAccessPoc called", "profile_id", p.ForwardingProfileID)

	if p.ForwardingProfileID == "" {
		return errorf("forwarding_profile_id is required")
	}

	var steps []string
	step := func(format string, args ...any) {
		steps = append(steps, fmt.Sprintf(format, args...))
	}

	enable := s.EnableForwardingProfile(ctx, p.ForwardingProfileID, "enabled")
	step("1. Forwarding Profile: %v", enable["message"])

	policy := s.CreateFilteringPolicy(ctx, p.FilteringPolicyName, p.FilteringPolicyDescription, nil)
	policyID, _ := policy["policy_id"].(string)
	step("2. Filtering Policy: %v", policy["message"])

	profile := s.CreateFilteringProfile(ctx, p.FilteringProfileName, p.FilteringProfileDescription,
		p.FilteringProfileState, p.FilteringProfilePriority)
	profileID, _ := profile["profile_id"].(string)
	step("3. Filtering Profile: %v", profile["message"])

	if profileID != "" && policyID != "" {
		link := s.LinkPolicyToProfile(ctx, profileID, policyID, p.LinkPriority)
		step("4. Link: %v", link["message"])
	} else {
		step("4. Link: Skipped due to missing profile or policy ID.")
	}

	switch {
	case p.CreateCAPolicy && profileID != "":
		ca := s.CreateConditionalAccessPolicy(ctx, ConditionalAccessPolicyParams{
			FilteringProfileID:  profileID,
			DisplayName:         p.CAPolicyDisplayName,
			IncludeUsers:        p.CAPolicyIncludeUsers,
			IncludeGroups:       p.CAPolicyIncludeGroups,
			IncludeApplications: p.CAPolicyIncludeApplications,
		})
		step("5. Conditional Access Policy: %v", ca["message"])
	case !p.CreateCAPolicy:
		step("5. Conditional Access Policy: Skipped (create_ca_policy=false).")
	default:
		step("5. Conditional Access Policy: Skipped due to missing filtering profile ID.")
	}

	return Result{
		"status":  "success",
		"steps":   steps,
		"summary": "Internet Access POC completed.",
		"message": strings.Join(steps, "\n"),
	}
}

// backoff waits min(2^attempt, 32) backoff units or until ctx is
// cancelled.
func (s *NetworkAccessService) backoff(ctx context.Context, attempt int) error {
	factor := 1 << attempt
	if factor > 32 {
		factor = 32
	}
	return sleepCtx(ctx, time.Duration(factor)*s.backoffUnit)
}

// validateCertFields enforces the Graph limits on external CA
// certificate fields: at most 12 characters, letters and digits only,
// with spaces additionally allowed in the common name.
func validateCertFields(name, commonName, organization string) []string {
	var errs []string
	if len(name) > 12 {
		errs = append(errs, fmt.Sprintf("name %q exceeds 12 character limit", name))
	}
	if len(commonName) > 12 {
		errs = append(errs, fmt.Sprintf("commonName %q exceeds 12 character limit", commonName))
	}
	if len(organization) > 12 {
		errs = append(errs, fmt.Sprintf("organizationName %q exceeds 12 character limit", organization))
	}
	if !alphanumeric.MatchString(name) {
		errs = append(errs, fmt.Sprintf("name %q contains invalid characters (only letters and digits allowed)", name))
	}
	if !alphanumericWithSpace.MatchString(commonName) {
		errs = append(errs, fmt.Sprintf("commonName %q contains invalid characters (only letters, digits and spaces allowed)", commonName))
	}
	if !alphanumeric.MatchString(organization) {
		errs = append(errs, fmt.Sprintf("organizationName %q contains invalid characters (only letters and digits allowed)", organization))
	}
	return errs
}

// writeCertFiles stores the root CA (PEM and CER) and the signed leaf
// certificate under dir.
func writeCertFiles(dir string, chain *tlscert.SignedChain) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create certificate directory %s: %w", dir, err)
	}

	files := map[string]string{
		"pem":         filepath.Join(dir, "rootCA.pem"),
		"cer":         filepath.Join(dir, "rootCA.cer"),
		"signed_cert": filepath.Join(dir, "signed_certificate.pem"),
	}
	if err := os.WriteFile(files["pem"], []byte(chain.RootCAPEM), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(files["cer"], []byte(chain.RootCAPEM), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(files["signed_cert"], []byte(chain.CertificatePEM), 0o644); err != nil {
		return nil, err
	}
	return files, nil
}
