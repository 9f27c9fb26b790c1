// Package storage owns the output tree: local image and prediction files, their
// blob URIs and the optional object store archive.
package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"edge-analyzer/internal/config"
	"edge-analyzer/internal/domain/analysis"
	"edge-analyzer/internal/utils"
)

const DefaultDomain = "core.windows.net"

// Namer derives the public blob URI of an output file.
type Namer struct {
	account   string
	domain    string
	container string
}

func NewNamer(cfg config.StorageConfig) Namer {
	domain := strings.TrimSpace(cfg.Domain)
	if domain == "" {
		domain = DefaultDomain
	}
	return Namer{account: cfg.AccountName, domain: domain, container: cfg.ContainerName}
}

// URI is https://<account>.blob.<domain>/<container>/<factoryId>/<cameraId>/<dest>/<file>.
func (n Namer) URI(factoryID, cameraID string, dest analysis.Destination, file string) string {
	return BlobURI(n.account, n.domain, n.container, factoryID, cameraID, dest, file)
}

func BlobURI(account, domain, container, factoryID, cameraID string, dest analysis.Destination, file string) string {
	return fmt.Sprintf("https://%s.blob.%s/%s/%s", account, domain, container, ObjectKey(factoryID, cameraID, dest, file))
}

// ObjectKey is the path of an output file below the output root and the container.
func ObjectKey(factoryID, cameraID string, dest analysis.Destination, file string) string {
	return strings.Join([]string{factoryID, cameraID, string(dest), file}, "/")
}

// OutputBaseName names the output files of one staged image for one (module, tag)
// sweep. The staged timestamp stays the leading segment so output names still
// sort and parse by capture time, and the module and tag suffix keeps copies of
// the same capture from overwriting each other.
func OutputBaseName(stagedName, moduleName, tagName string) string {
	ts := strings.TrimSuffix(stagedName, filepath.Ext(stagedName))
	return fmt.Sprintf("%s_%s_%s", ts, utils.SanitizeSegment(moduleName), utils.SanitizeSegment(tagName))
}
