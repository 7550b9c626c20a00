package services

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getset-labs/pox-mcp/internal/core/ports/driven"
)

func newIntuneService(graph *fakeGraph, blob *fakeBlob) *IntuneService {
	svc := NewIntuneService(graph, blob)
	svc.uriPollInterval = time.Millisecond
	svc.statusPollInterval = time.Millisecond
	svc.assignDelay = 0
	return svc
}

// intunewinArchive builds a minimal valid .intunewin package.
func intunewinArchive(t *testing.T, payload []byte) []byte {
	t.Helper()
	detection := `<?xml version="1.0"?>
<ApplicationInfo>
  <UnencryptedContentSize>2048</UnencryptedContentSize>
  <EncryptionInfo>
    <EncryptionKey>a2V5</EncryptionKey>
    <MacKey>bWFj</MacKey>
    <InitializationVector>aXY=</InitializationVector>
    <Mac>bWFjdmFs</Mac>
    <ProfileIdentifier>ProfileVersion1</ProfileIdentifier>
    <FileDigest>ZGlnZXN0</FileDigest>
    <FileDigestAlgorithm>SHA256</FileDigestAlgorithm>
  </EncryptionInfo>
</ApplicationInfo>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("IntuneWinPackage/Metadata/Detection.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(detection))
	require.NoError(t, err)
	w, err = zw.Create("IntuneWinPackage/Contents/IntunePackage.intunewin")
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestIntune_ListManagedDevices(t *testing.T) {
	graph := &fakeGraph{handler: func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return ok(listBody(
			map[string]any{"id": "d1", "deviceName": "LAPTOP-01", "operatingSystem": "Windows", "userDisplayName": "Alice", "serialNumber": "secret"},
		)), nil
	}}
	svc := newIntuneService(graph, &fakeBlob{})

	r := svc.ListManagedDevices(context.Background(), 0)

	require.Equal(t, "success", r["status"])
	assert.Equal(t, 1, r["count"])
	devices := r["devices"].([]map[string]any)
	require.Len(t, devices, 1)
	assert.Equal(t, "LAPTOP-01", devices[0]["deviceName"])
	assert.NotContains(t, devices[0], "serialNumber")

	req := graph.requests()[0]
	assert.True(t, req.Beta)
	assert.Equal(t, "/deviceManagement/managedDevices?$top=10", req.Path)
}

func TestIntune_ListManagedDevices_Empty(t *testing.T) {
	graph := &fakeGraph{handler: func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return ok(listBody()), nil
	}}
	svc := newIntuneService(graph, &fakeBlob{})

	r := svc.ListManagedDevices(context.Background(), 0)

	require.Equal(t, "success", r["status"])
	assert.Equal(t, "No managed devices found.", r["message"])
	assert.Empty(t, r["devices"])
}

func TestIntune_GetManagedDeviceDetails(t *testing.T) {
	graph := &fakeGraph{handler: func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return ok(map[string]any{
			"id": "d1", "deviceName": "LAPTOP-01", "complianceState": "compliant",
			"osVersion": "10.0.22631", "model": "Surface",
		}), nil
	}}
	svc := newIntuneService(graph, &fakeBlob{})

	r := svc.GetManagedDeviceDetails(context.Background(), "d1")

	require.Equal(t, "success", r["status"])
	device := r["device"].(map[string]any)
	assert.Equal(t, "LAPTOP-01", device["deviceName"])
	assert.Equal(t, "compliant", device["complianceState"])
	assert.Equal(t, "/deviceManagement/managedDevices/d1", graph.requests()[0].Path)
}

func TestIntune_GetManagedDeviceDetails_RequiresID(t *testing.T) {
	svc := newIntuneService(&fakeGraph{}, &fakeBlob{})

	r := svc.GetManagedDeviceDetails(context.Background(), "")

	assert.Equal(t, "error", r["status"])
	assert.Equal(t, "deviceId is required", r["message"])
}

func TestIntune_ListCompliancePolicies(t *testing.T) {
	graph := &fakeGraph{handler: func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return ok(listBody(
			map[string]any{"id": "p1", "displayName": "Win Compliance", "@odata.type": "#microsoft.graph.windows10CompliancePolicy"},
			map[string]any{"id": "p2"},
		)), nil
	}}
	svc := newIntuneService(graph, &fakeBlob{})

	r := svc.ListCompliancePolicies(context.Background())

	require.Equal(t, "success", r["status"])
	policies := r["policies"].([]map[string]any)
	require.Len(t, policies, 2)
	assert.Equal(t, 1, policies[0]["index"])
	assert.Equal(t, "windows10CompliancePolicy", policies[0]["platform"])
	assert.Equal(t, "Unnamed Policy", policies[1]["displayName"])
	assert.Equal(t, "Unknown", policies[1]["platform"])
	assert.Equal(t, "No description", policies[1]["description"])
}

func TestIntune_ListConfigurationProfiles_Empty(t *testing.T) {
	graph := &fakeGraph{handler: func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return ok(listBody()), nil
	}}
	svc := newIntuneService(graph, &fakeBlob{})

	r := svc.ListConfigurationProfiles(context.Background())

	require.Equal(t, "success", r["status"])
	assert.Equal(t, "No device configuration profiles found.", r["message"])
}

func TestIntune_SyncManagedDevice(t *testing.T) {
	graph := &fakeGraph{handler: func(req driven.GraphRequest) (*driven.GraphResult, error) {
		return noContent(), nil
	}}
	svc := newIntuneService(graph, &fakeBlob{})

	r := svc.SyncManagedDevice(context.Background(), "d1")

	require.Equal(t, "success", r["status"])
	assert.Equal(t, "d1", r["deviceId"])
	req := graph.requests()[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/deviceManagement/managedDevices/d1/syncDevice", req.Path)
	assert.True(t, req.Beta)
}

func TestIntune_PrepGSAWinClient(t *testing.T) {
	payload := []byte("encrypted-installer-bytes")
	blob := &fakeBlob{content: intunewinArchive(t, payload)}

	var filePolls int
	graph := &fakeGraph{handler: func(req driven.GraphRequest) (*driven.GraphResult, error) {
		switch {
		case req.Method == http.MethodPost && req.Path == "/deviceAppManagement/mobileApps":
			return created(map[string]any{"id": "app-1"}), nil
		case strings.HasSuffix(req.Path, "/contentVersions"):
			return created(map[string]any{"id": "1"}), nil
		case strings.HasSuffix(req.Path, "/files"):
			// No storage URI yet; the workflow must poll for it.
			return created(map[string]any{"id": "file-1"}), nil
		case req.Method == http.MethodGet && strings.HasSuffix(req.Path, "/files/file-1"):
			filePolls++
			if filePolls == 1 {
				return ok(map[string]any{"id": "file-1"}), nil
			}
			if filePolls == 2 {
				return ok(map[string]any{"id": "file-1", "azureStorageUri": "https://storage.example/file?sig=x"}), nil
			}
			return ok(map[string]any{"id": "file-1", "uploadState": "commitFileSuccess"}), nil
		case strings.HasSuffix(req.Path, "/commit"):
			return noContent(), nil
		case req.Method == http.MethodPatch:
			return noContent(), nil
		}
		t.Errorf("unexpected request %s %s", req.Method, req.Path)
		return nil, nil
	}}

	svc := newIntuneService(graph, blob)
	r := svc.PrepGSAWinClient(context.Background(), PrepGSAWinClientParams{})

	require.Equal(t, "success", r["status"], "progress: %v", r["progress"])
	assert.Equal(t, "app-1", r["app_id"])
	assert.Equal(t, "1", r["content_version_id"])
	assert.Equal(t, defaultGSADisplayName, r["display_name"])

	// The encrypted payload, not the whole archive, goes to storage.
	assert.Equal(t, payload, blob.uploaded)
	assert.Equal(t, []string{defaultGSASASURL}, blob.downloads)

	var commit driven.GraphRequest
	for _, req := range graph.requests() {
		if strings.HasSuffix(req.Path, "/commit") {
			commit = req
		}
	}
	require.NotNil(t, commit.Body)
	encInfo := commit.Body.(map[string]any)["fileEncryptionInfo"].(map[string]any)
	assert.Equal(t, "a2V5", encInfo["encryptionKey"])
	assert.Equal(t, "SHA256", encInfo["fileDigestAlgorithm"])
}

func TestIntune_PrepGSAWinClient_AppPayload(t *testing.T) {
	blob := &fakeBlob{content: intunewinArchive(t, []byte("payload"))}
	graph := &fakeGraph{handler: func(req driven.GraphRequest) (*driven.GraphResult, error) {
		if req.Method == http.MethodPost && req.Path == "/deviceAppManagement/mobileApps" {
			return created(map[string]any{"id": "app-1"}), nil
		}
		if strings.HasSuffix(req.Path, "/files") && req.Method == http.MethodPost {
			return created(map[string]any{"id": "file-1", "azureStorageUri": "https://storage.example/f?sig=x"}), nil
		}
		if req.Method == http.MethodGet {
			return ok(map[string]any{"uploadState": "commitFileSuccess"}), nil
		}
		return created(map[string]any{"id": "1"}), nil
	}}

	svc := newIntuneService(graph, blob)
	r := svc.PrepGSAWinClient(context.Background(), PrepGSAWinClientParams{
		DisplayName: "Custom GSA",
		Publisher:   "Contoso",
	})
	require.Equal(t, "success", r["status"], "progress: %v", r["progress"])

	appBody := graph.requests()[0].Body.(map[string]any)
	assert.Equal(t, "#microsoft.graph.win32LobApp", appBody["@odata.type"])
	assert.Equal(t, "Custom GSA", appBody["displayName"])
	assert.Equal(t, "Contoso", appBody["publisher"])
	assert.Equal(t, "GlobalSecureAccessClient.exe /quiet /norestart", appBody["installCommandLine"])

	minOS := appBody["minimumSupportedOperatingSystem"].(map[string]any)
	assert.Equal(t, true, minOS["v10_1809"])

	detection := appBody["detectionRules"].([]map[string]any)[0]
	assert.Equal(t, `%ProgramFiles%\Global Secure Access Client`, detection["path"])

	codes := appBody["returnCodes"].([]map[string]any)
	require.Len(t, codes, 5)
	assert.Equal(t, 3010, codes[2]["returnCode"])
	assert.Equal(t, "softReboot", codes[2]["type"])
}

func TestIntune_PrepGSAWinClient_DownloadFails(t *testing.T) {
	blob := &fakeBlob{downloadErr: assert.AnError}
	svc := newIntuneService(&fakeGraph{}, blob)

	r := svc.PrepGSAWinClient(context.Background(), PrepGSAWinClientParams{})

	assert.Equal(t, "error", r["status"])
	assert.Contains(t, r["message"], "Error downloading installer")
	assert.NotEmpty(t, r["progress"])
}

func TestIntune_PrepGSAWinClient_CommitFailedState(t *testing.T) {
	blob := &fakeBlob{content: intunewinArchive(t, []byte("payload"))}
	graph := &fakeGraph{handler: func(req driven.GraphRequest) (*driven.GraphResult, error) {
		if strings.HasSuffix(req.Path, "/files") && req.Method == http.MethodPost {
			return created(map[string]any{"id": "file-1", "azureStorageUri": "https://storage.example/f?sig=x"}), nil
		}
		if req.Method == http.MethodGet {
			return ok(map[string]any{"uploadState": "commitFileFailed"}), nil
		}
		return created(map[string]any{"id": "x"}), nil
	}}

	svc := newIntuneService(graph, blob)
	r := svc.PrepGSAWinClient(context.Background(), PrepGSAWinClientParams{})

	assert.Equal(t, "error", r["status"])
	assert.Contains(t, r["message"], "commit failed")
}

func TestIntune_AppAssignment(t *testing.T) {
	graph := &fakeGraph{handler: func(req driven.GraphRequest) (*driven.GraphResult, error) {
		switch {
		case req.Method == http.MethodGet && strings.HasSuffix(req.Path, "/assignments"):
			return ok(listBody()), nil
		case req.Method == http.MethodGet:
			return ok(map[string]any{
				"id": "app-1", "displayName": "GSA Client", "publisher": "Microsoft",
				"@odata.type": "#microsoft.graph.win32LobApp", "committedContentVersion": "1",
			}), nil
		default:
			return created(map[string]any{"id": "assign-" + req.Body.(map[string]any)["target"].(map[string]any)["groupId"].(string)}), nil
		}
	}}
	svc := newIntuneService(graph, &fakeBlob{})

	r := svc.AppAssignment(context.Background(), AppAssignmentParams{
		AppID:    "app-1",
		GroupIDs: []string{"g1", "g2"},
	})

	require.Equal(t, "success", r["status"])
	data := r["data"].(map[string]any)
	assert.Equal(t, true, data["success"])

	assignment := data["assignment"].(map[string]any)
	assert.Equal(t, "required", assignment["intent"])
	assert.Equal(t, 2, assignment["totalGroups"])
	assert.Equal(t, 2, assignment["successfulAssignments"])
	assert.Equal(t, 0, assignment["failedAssignments"])

	assignments := data["assignments"].([]map[string]any)
	require.Len(t, assignments, 2)
	assert.Equal(t, "assign-g1", assignments[0]["assignmentId"])

	// The assignment POST goes to the v1.0 endpoint.
	posts := 0
	for _, req := range graph.requests() {
		if req.Method == http.MethodPost {
			posts++
			assert.False(t, req.Beta)
			body := req.Body.(map[string]any)
			settings := body["settings"].(map[string]any)
			assert.Equal(t, "#microsoft.graph.win32LobAppAssignmentSettings", settings["@odata.type"])
			restart := settings["restartSettings"].(map[string]any)
			assert.Equal(t, 1440, restart["gracePeriodInMinutes"])
			// Required intent carries install time settings.
			assert.Contains(t, settings, "installTimeSettings")
		}
	}
	assert.Equal(t, 2, posts)
}

func TestIntune_AppAssignment_PartialFailure(t *testing.T) {
	graph := &fakeGraph{handler: func(req driven.GraphRequest) (*driven.GraphResult, error) {
		switch {
		case req.Method == http.MethodGet && strings.HasSuffix(req.Path, "/assignments"):
			return ok(listBody()), nil
		case req.Method == http.MethodGet:
			return ok(map[string]any{"id": "app-1", "displayName": "GSA Client", "committedContentVersion": "1"}), nil
		default:
			groupID := req.Body.(map[string]any)["target"].(map[string]any)["groupId"].(string)
			if groupID == "bad" {
				return graphError(http.StatusBadRequest, "BadRequest", "no such group"), nil
			}
			return created(map[string]any{"id": "assign-1"}), nil
		}
	}}
	svc := newIntuneService(graph, &fakeBlob{})

	r := svc.AppAssignment(context.Background(), AppAssignmentParams{
		AppID:    "app-1",
		GroupIDs: []string{"g1", "bad"},
	})

	assert.Equal(t, "partial", r["status"])
	data := r["data"].(map[string]any)
	assert.Equal(t, false, data["success"])
	failures := data["errors"].([]map[string]any)
	require.Len(t, failures, 1)
	assert.Equal(t, "bad", failures[0]["groupId"])
}

func TestIntune_AppAssignment_Validation(t *testing.T) {
	svc := newIntuneService(&fakeGraph{}, &fakeBlob{})

	r := svc.AppAssignment(context.Background(), AppAssignmentParams{GroupIDs: []string{"g1"}})
	assert.Equal(t, "error", r["status"])

	r = svc.AppAssignment(context.Background(), AppAssignmentParams{AppID: "app-1"})
	assert.Equal(t, "error", r["status"])
	assert.Equal(t, "At least one group ID must be provided", r["message"])
}

func TestIntune_AppAssignment_NotRequiredIntentOmitsInstallTime(t *testing.T) {
	graph := &fakeGraph{handler: func(req driven.GraphRequest) (*driven.GraphResult, error) {
		if req.Method == http.MethodGet {
			return ok(map[string]any{"id": "app-1", "committedContentVersion": "1", "value": []any{}}), nil
		}
		return created(map[string]any{"id": "assign-1"}), nil
	}}
	svc := newIntuneService(graph, &fakeBlob{})

	r := svc.AppAssignment(context.Background(), AppAssignmentParams{
		AppID:    "app-1",
		GroupIDs: []string{"g1"},
		Intent:   "available",
	})

	require.Equal(t, "success", r["status"])
	for _, req := range graph.requests() {
		if req.Method == http.MethodPost {
			settings := req.Body.(map[string]any)["settings"].(map[string]any)
			assert.NotContains(t, settings, "installTimeSettings")
		}
	}
}

func TestPlatformFromODataType(t *testing.T) {
	assert.Equal(t, "windows10CompliancePolicy", platformFromODataType("#microsoft.graph.windows10CompliancePolicy"))
	assert.Equal(t, "Unknown", platformFromODataType(nil))
	assert.Equal(t, "Unknown", platformFromODataType(""))
	assert.Equal(t, "plain", platformFromODataType("plain"))
}
