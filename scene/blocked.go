package scene

// BlockedReason tags why a scene is withheld from tick grants (§3
// "blocked: set<reason>"). Spec §9 leaves these as unenumerated string
// tags; this is the explicit enumeration the open question calls for. See
// DESIGN.md.
type BlockedReason string

const (
	// BlockedAwaitingContent is set while the scene's script or asset
	// bundle is still downloading (§1, §6 asset fetch).
	BlockedAwaitingContent BlockedReason = "awaiting_content"

	// BlockedPermissionPrompt is set while a permission request the scene
	// is waiting on is still pending user resolution (§4.J).
	BlockedPermissionPrompt BlockedReason = "permission_prompt"

	// BlockedWorkerRestart is set by the scheduler after a worker fault,
	// so it does not grant another tick to a scene whose isolate just
	// crashed. Nothing in this module clears it again.
	BlockedWorkerRestart BlockedReason = "worker_restart"
)
