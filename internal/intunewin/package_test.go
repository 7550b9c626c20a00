package intunewin

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detectionTemplate = `<?xml version="1.0" encoding="utf-8"?>
<ApplicationInfo>
  <Name>GlobalSecureAccessClient</Name>
  <UnencryptedContentSize>1048576</UnencryptedContentSize>
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

func buildArchive(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParse(t *testing.T) {
	payload := []byte("encrypted-payload-bytes")
	data := buildArchive(t, map[string][]byte{
		detectionXMLPath: []byte(detectionTemplate),
		contentsPath:     payload,
	})

	pkg, err := Parse(data)

	require.NoError(t, err)
	assert.Equal(t, int64(1048576), pkg.UnencryptedSize)
	assert.Equal(t, payload, pkg.EncryptedContent)
	assert.Equal(t, "a2V5", pkg.Encryption.EncryptionKey)
	assert.Equal(t, "bWFj", pkg.Encryption.MacKey)
	assert.Equal(t, "aXY=", pkg.Encryption.InitializationVector)
	assert.Equal(t, "ProfileVersion1", pkg.Encryption.ProfileIdentifier)
	assert.Equal(t, "SHA256", pkg.Encryption.FileDigestAlgorithm)
}

func TestParse_NotAZip(t *testing.T) {
	_, err := Parse([]byte("definitely not a zip"))
	assert.ErrorContains(t, err, "open intunewin archive")
}

func TestParse_MissingDetectionXML(t *testing.T) {
	data := buildArchive(t, map[string][]byte{
		contentsPath: []byte("payload"),
	})

	_, err := Parse(data)
	assert.ErrorContains(t, err, "Detection.xml")
}

func TestParse_MissingContents(t *testing.T) {
	data := buildArchive(t, map[string][]byte{
		detectionXMLPath: []byte(detectionTemplate),
	})

	_, err := Parse(data)
	assert.ErrorContains(t, err, "IntunePackage.intunewin")
}

func TestParse_MissingEncryptionFields(t *testing.T) {
	detection := `<?xml version="1.0"?>
<ApplicationInfo>
  <UnencryptedContentSize>10</UnencryptedContentSize>
  <EncryptionInfo>
    <EncryptionKey>a2V5</EncryptionKey>
  </EncryptionInfo>
</ApplicationInfo>`
	data := buildArchive(t, map[string][]byte{
		detectionXMLPath: []byte(detection),
		contentsPath:     []byte("payload"),
	})

	_, err := Parse(data)
	assert.ErrorContains(t, err, "missing required encryption fields")
}

func TestParse_DefaultsProfileAndDigestAlgorithm(t *testing.T) {
	detection := `<?xml version="1.0"?>
<ApplicationInfo>
  <UnencryptedContentSize>10</UnencryptedContentSize>
  <EncryptionInfo>
    <EncryptionKey>a2V5</EncryptionKey>
    <MacKey>bWFj</MacKey>
    <InitializationVector>aXY=</InitializationVector>
    <Mac>bWFjdmFs</Mac>
  </EncryptionInfo>
</ApplicationInfo>`
	data := buildArchive(t, map[string][]byte{
		detectionXMLPath: []byte(detection),
		contentsPath:     []byte("payload"),
	})

	pkg, err := Parse(data)

	require.NoError(t, err)
	assert.Equal(t, "ProfileVersion1", pkg.Encryption.ProfileIdentifier)
	assert.Equal(t, "SHA256", pkg.Encryption.FileDigestAlgorithm)
}

func TestParse_FallsBackToArchiveSize(t *testing.T) {
	detection := `<?xml version="1.0"?>
<ApplicationInfo>
  <EncryptionInfo>
    <EncryptionKey>a2V5</EncryptionKey>
    <MacKey>bWFj</MacKey>
    <InitializationVector>aXY=</InitializationVector>
    <Mac>bWFjdmFs</Mac>
  </EncryptionInfo>
</ApplicationInfo>`
	data := buildArchive(t, map[string][]byte{
		detectionXMLPath: []byte(detection),
		contentsPath:     []byte("payload"),
	})

	pkg, err := Parse(data)

	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), pkg.UnencryptedSize)
}

func TestPackage_FileEncryptionInfo(t *testing.T) {
	pkg := &Package{Encryption: EncryptionInfo{
		EncryptionKey:        "a2V5",
		MacKey:               "bWFj",
		InitializationVector: "aXY=",
		Mac:                  "bWFjdmFs",
		ProfileIdentifier:    "ProfileVersion1",
		FileDigest:           "ZGlnZXN0",
		FileDigestAlgorithm:  "SHA256",
	}}

	info := pkg.FileEncryptionInfo()

	assert.Equal(t, "a2V5", info["encryptionKey"])
	assert.Equal(t, "bWFj", info["macKey"])
	assert.Equal(t, "aXY=", info["initializationVector"])
	assert.Equal(t, "bWFjdmFs", info["mac"])
	assert.Equal(t, "ProfileVersion1", info["profileIdentifier"])
	assert.Equal(t, "ZGlnZXN0", info["fileDigest"])
	assert.Equal(t, "SHA256", info["fileDigestAlgorithm"])
}
