// Package manifest is the single source of truth for what a skiff backup
// archive contains and how archives are named. Every component that writes,
// reads, or prunes archives must consume these definitions rather than carry
// its own copy of the list.
package manifest

// PrimaryConfigFile is the agent runtime's main configuration file. Its
// presence is the basic health signal of a backup; its absence is a warning,
// never a hard failure.
const PrimaryConfigFile = "config.json"

// DataSubdirs is the canonical, ordered list of runtime state directories
// captured from the agent data directory. Adding or removing an entry here
// changes both what backups contain and what restores distribute.
var DataSubdirs = []string{
	"credentials",
	"identity",
	"agents",
	"memory",
	"extensions",
	"devices",
	"cron",
	"settings",
}

// BrowserDir is the host-side browser profile directory captured alongside
// the agent data.
const BrowserDir = "browser"

// BrowserCacheSubdirs are cache-only subpaths stripped from the browser
// profile on backup and again after restore. Chromium recreates them on
// demand; restoring stale cached assets is never wanted.
var BrowserCacheSubdirs = []string{
	"Cache",
	"Code Cache",
	"Service Worker",
}

// WorkspaceFiles are the named workspace documents copied best-effort into
// each archive. Missing files are skipped silently.
var WorkspaceFiles = []string{
	"AGENTS.md",
	"SOUL.md",
	"IDENTITY.md",
	"USER.md",
	"TOOLS.md",
}

// WorkspaceMemoryDir is the workspace memory subdirectory captured with the
// workspace files.
const WorkspaceMemoryDir = "memory"

// WorkspaceArchiveDir is the directory inside an archive holding the
// workspace files and memory subdirectory.
const WorkspaceArchiveDir = "workspace"

// DeployDescriptors are the deployment descriptor files captured from the
// deploy directory on the host.
var DeployDescriptors = []string{
	"docker-compose.yml",
	".env",
}

// PortableConfig is the host-side portable configuration file captured at
// the archive root.
const PortableConfig = "skiff.json"
