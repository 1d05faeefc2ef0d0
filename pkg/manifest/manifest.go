// Package manifest lifts firmware metadata out of the plists a container
// ships at its top level (BuildManifest.plist, Restore.plist).
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"howett.net/plist"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
)

// buildManifest covers the fields shared by BuildManifest.plist and
// Restore.plist; everything else in the plist is ignored.
type buildManifest struct {
	ProductVersion        string   `plist:"ProductVersion"`
	ProductBuildVersion   string   `plist:"ProductBuildVersion"`
	SupportedProductTypes []string `plist:"SupportedProductTypes"`
	ProductType           string   `plist:"ProductType"`
	DeviceClass           string   `plist:"DeviceClass"`
}

// Parse decodes one plist payload. Both XML and binary plist forms are
// accepted; the codec sniffs the format itself.
func Parse(data []byte) (*models.FirmwareInfo, error) {
	var bm buildManifest
	if _, err := plist.Unmarshal(data, &bm); err != nil {
		return nil, fmt.Errorf("failed to decode manifest plist: %w", err)
	}

	info := &models.FirmwareInfo{
		ProductVersion: bm.ProductVersion,
		ProductBuild:   bm.ProductBuildVersion,
	}

	classes := make(map[string]struct{})
	for _, t := range bm.SupportedProductTypes {
		classes[t] = struct{}{}
	}
	if bm.ProductType != "" {
		classes[bm.ProductType] = struct{}{}
	}
	if bm.DeviceClass != "" {
		classes[bm.DeviceClass] = struct{}{}
	}
	for c := range classes {
		info.DeviceClasses = append(info.DeviceClasses, c)
	}
	sort.Strings(info.DeviceClasses)

	if info.ProductVersion == "" && info.ProductBuild == "" && len(info.DeviceClasses) == 0 {
		return nil, fmt.Errorf("plist carries no recognizable firmware metadata")
	}
	return info, nil
}

// FromCaptured picks the best manifest out of the payloads the extractor
// captured. BuildManifest.plist wins over Restore.plist wins over anything
// else; the first parseable candidate is returned, nil when none parse.
// Missing metadata is not an error: a comparison still runs without it.
func FromCaptured(captured map[string][]byte) *models.FirmwareInfo {
	if len(captured) == 0 {
		return nil
	}

	names := make([]string, 0, len(captured))
	for name := range captured {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := manifestPriority(names[i]), manifestPriority(names[j])
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		if info, err := Parse(captured[name]); err == nil {
			return info
		}
	}
	return nil
}

func manifestPriority(name string) int {
	switch strings.ToLower(name) {
	case "buildmanifest.plist":
		return 0
	case "restore.plist":
		return 1
	}
	return 2
}
