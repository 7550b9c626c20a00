// Package intunewin reads .intunewin packages, the wrapper format the
// Microsoft Win32 Content Prep Tool produces for Intune app uploads.
//
// A package is a zip archive containing the encrypted payload at
// IntuneWinPackage/Contents/IntunePackage.intunewin and its metadata
// at IntuneWinPackage/Metadata/Detection.xml.
package intunewin

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

const (
	detectionXMLPath = "IntuneWinPackage/Metadata/Detection.xml"
	contentsPath     = "IntuneWinPackage/Contents/IntunePackage.intunewin"
)

// EncryptionInfo carries the fields Intune needs to decrypt the
// payload server side. Values are opaque base64 strings taken verbatim
// from Detection.xml.
type EncryptionInfo struct {
	EncryptionKey        string `xml:"EncryptionKey"`
	MacKey               string `xml:"MacKey"`
	InitializationVector string `xml:"InitializationVector"`
	Mac                  string `xml:"Mac"`
	ProfileIdentifier    string `xml:"ProfileIdentifier"`
	FileDigest           string `xml:"FileDigest"`
	FileDigestAlgorithm  string `xml:"FileDigestAlgorithm"`
}

// detectionXML mirrors the ApplicationInfo document in Detection.xml.
type detectionXML struct {
	XMLName                xml.Name       `xml:"ApplicationInfo"`
	UnencryptedContentSize int64          `xml:"UnencryptedContentSize"`
	EncryptionInfo         EncryptionInfo `xml:"EncryptionInfo"`
}

// Package is a parsed .intunewin archive.
type Package struct {
	// UnencryptedSize is the payload size before encryption.
	UnencryptedSize int64
	// EncryptedContent is the payload as uploaded to Azure Storage.
	// Intune decrypts it server side.
	EncryptedContent []byte
	// Encryption holds the decryption metadata for the commit call.
	Encryption EncryptionInfo
}

// Parse reads a .intunewin archive from data.
func Parse(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open intunewin archive: %w", err)
	}

	detection, err := readEntry(zr, detectionXMLPath)
	if err != nil {
		return nil, err
	}
	content, err := readEntry(zr, contentsPath)
	if err != nil {
		return nil, err
	}

	var meta detectionXML
	if err := xml.Unmarshal(detection, &meta); err != nil {
		return nil, fmt.Errorf("parse Detection.xml: %w", err)
	}

	enc := meta.EncryptionInfo
	if enc.EncryptionKey == "" || enc.MacKey == "" || enc.InitializationVector == "" || enc.Mac == "" {
		return nil, errors.New("Detection.xml is missing required encryption fields")
	}
	if enc.ProfileIdentifier == "" {
		enc.ProfileIdentifier = "ProfileVersion1"
	}
	if enc.FileDigestAlgorithm == "" {
		enc.FileDigestAlgorithm = "SHA256"
	}

	size := meta.UnencryptedContentSize
	if size <= 0 {
		size = int64(len(data))
	}

	return &Package{
		UnencryptedSize:  size,
		EncryptedContent: content,
		Encryption:       enc,
	}, nil
}

// FileEncryptionInfo renders the encryption metadata as the Graph
// commit payload expects it.
func (p *Package) FileEncryptionInfo() map[string]any {
	return map[string]any{
		"encryptionKey":        p.Encryption.EncryptionKey,
		"macKey":               p.Encryption.MacKey,
		"initializationVector": p.Encryption.InitializationVector,
		"mac":                  p.Encryption.Mac,
		"profileIdentifier":    p.Encryption.ProfileIdentifier,
		"fileDigest":           p.Encryption.FileDigest,
		"fileDigestAlgorithm":  p.Encryption.FileDigestAlgorithm,
	}
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("intunewin entry %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read intunewin entry %s: %w", name, err)
	}
	return data, nil
}
