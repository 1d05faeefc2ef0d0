package classify

import "github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"

// defaultRules is the built-in component knowledge table. Order is priority:
// critical boot-of-trust components come first so a path like
// "Firmware/all_flash/sep-firmware.img4" resolves to its critical rule even
// though later security and boot patterns would also match it.
//
// The table is replaceable wholesale via LoadTable; nothing in the matcher
// knows these names.
var defaultRules = []Rule{
	{Name: "kernelcache", Match: MatchContains, Pattern: "kernelcache",
		Category: models.CategoryKernel, Severity: models.SeverityCritical,
		Description: "Core operating system kernel image"},
	{Name: "sep-firmware", Match: MatchContains, Pattern: "sep",
		Category: models.CategorySecurity, Severity: models.SeverityCritical,
		Description: "Secure Enclave processor firmware"},
	{Name: "baseband", Match: MatchContains, Pattern: "baseband",
		Category: models.CategorySystem, Severity: models.SeverityCritical,
		Description: "Cellular baseband firmware"},

	{Name: "trustcache", Match: MatchContains, Pattern: "trustcache",
		Category: models.CategorySecurity, Severity: models.SeverityHigh,
		Description: "Signed table of approved executable hashes"},
	{Name: "root-hash", Match: MatchContains, Pattern: "root_hash",
		Category: models.CategorySecurity, Severity: models.SeverityHigh,
		Description: "System volume integrity root hash"},
	{Name: "seal", Match: MatchContains, Pattern: "seal",
		Category: models.CategorySecurity, Severity: models.SeverityHigh},
	{Name: "crypto", Match: MatchContains, Pattern: "crypto",
		Category: models.CategorySecurity, Severity: models.SeverityHigh},
	{Name: "security", Match: MatchContains, Pattern: "security",
		Category: models.CategorySecurity, Severity: models.SeverityHigh},
	{Name: "certificate", Match: MatchContains, Pattern: "certificate",
		Category: models.CategorySecurity, Severity: models.SeverityHigh},
	{Name: "keychain", Match: MatchContains, Pattern: "keychain",
		Category: models.CategorySecurity, Severity: models.SeverityHigh},
	{Name: "auth", Match: MatchContains, Pattern: "auth",
		Category: models.CategorySecurity, Severity: models.SeverityHigh},

	{Name: "iboot", Match: MatchContains, Pattern: "iboot",
		Category: models.CategoryBootChain, Severity: models.SeverityHigh,
		Description: "Stage-2 bootloader"},
	{Name: "ibss", Match: MatchContains, Pattern: "ibss",
		Category: models.CategoryBootChain, Severity: models.SeverityHigh,
		Description: "Recovery-mode bootstrap (iBSS)"},
	{Name: "ibec", Match: MatchContains, Pattern: "ibec",
		Category: models.CategoryBootChain, Severity: models.SeverityHigh,
		Description: "Recovery-mode boot stage (iBEC)"},
	{Name: "llb", Match: MatchContains, Pattern: "llb",
		Category: models.CategoryBootChain, Severity: models.SeverityHigh,
		Description: "Low-level bootloader"},
	{Name: "boot", Match: MatchContains, Pattern: "boot",
		Category: models.CategoryBootChain, Severity: models.SeverityMedium},

	{Name: "kernel", Match: MatchContains, Pattern: "kernel",
		Category: models.CategoryKernel, Severity: models.SeverityHigh},

	{Name: "dyld-cache", Match: MatchContains, Pattern: "dyld",
		Category: models.CategoryPerformance, Severity: models.SeverityMedium,
		Description: "Shared library cache"},
	{Name: "cache", Match: MatchContains, Pattern: "cache",
		Category: models.CategoryPerformance, Severity: models.SeverityMedium},
	{Name: "perf", Match: MatchContains, Pattern: "perf",
		Category: models.CategoryPerformance, Severity: models.SeverityMedium},
	{Name: "memory", Match: MatchContains, Pattern: "memory",
		Category: models.CategoryPerformance, Severity: models.SeverityMedium},

	{Name: "framework", Match: MatchContains, Pattern: "framework",
		Category: models.CategoryFeature, Severity: models.SeverityLow},
	{Name: "api", Match: MatchContains, Pattern: "api",
		Category: models.CategoryFeature, Severity: models.SeverityLow},

	{Name: "daemon", Match: MatchContains, Pattern: "daemon",
		Category: models.CategorySystem, Severity: models.SeverityLow},
	{Name: "service", Match: MatchContains, Pattern: "service",
		Category: models.CategorySystem, Severity: models.SeverityLow},
	{Name: "system", Match: MatchContains, Pattern: "system",
		Category: models.CategorySystem, Severity: models.SeverityLow},
	{Name: "plist-config", Match: MatchSuffix, Pattern: ".plist",
		Category: models.CategorySystem, Severity: models.SeverityLow,
		Description: "Property-list configuration"},
}

// DefaultTable returns the built-in rule table.
func DefaultTable() *Table {
	t, err := NewTable(defaultRules)
	if err != nil {
		// The built-in table is validated by tests; failing here is a
		// programming defect, not a runtime condition.
		panic("classify: built-in rule table invalid: " + err.Error())
	}
	return t
}
