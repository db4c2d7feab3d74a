// Package constants vends constants used in various components of dogbox, e.g., env var names
package constants

const (
	// -------------- env vars --------------
	// common
	EnvVerbose = "DOGBOX_VERBOSE"
	// server
	EnvAppHost             = "DOGBOX_HOST"
	EnvAppPort             = "PORT"
	EnvAccessConfigPath    = "ACCESS_CONFIG_PATH"
	EnvTemplatesDir        = "DOGBOX_TEMPLATES_DIR"
	EnvStaticDir           = "DOGBOX_STATIC_DIR"
	EnvUploadSizeMaxByte   = "DOGBOX_UPLOAD_SIZE_MAX_BYTE"
	EnvShutdownGracePeriod = "DOGBOX_SHUTDOWN_GRACE_PERIOD"
	// stores
	EnvStoragePath = "STORAGE_PATH"
	// sweeper
	EnvRetentionTimeMillis = "RETENTION_TIME"

	// -------------- http --------------
	FilesURLPrefix  = "/files"
	AuthRealm       = "DogBox"
	HeaderRequestID = "X-Request-Id"

	// -------------- error messages --------------
	ErrMsgRequestBodyTooLarge = "request body too large"

	// -------------- log fields --------------
	LogFieldFuncName  = "funcName"
	LogFieldRequestID = "requestID"
)
