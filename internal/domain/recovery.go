package domain

// Recovery signal reasons, as delivered by the platform boot/update signal.
// Used only for diagnostics.
const (
	ReasonBootCompleted   = "BOOT_COMPLETED"
	ReasonAppUpdated      = "APP_UPDATED"
	ReasonPackageReplaced = "PACKAGE_REPLACED"
)

// AuthStatus is the calendar collaborator's authorization state as observed
// during a recovery diagnostics snapshot.
type AuthStatus string

const (
	AuthStatusOK           AuthStatus = "ok"
	AuthStatusUnauthorized AuthStatus = "unauthorized"
	AuthStatusUnknown      AuthStatus = "unknown"
)
