package naming

import "os"

// EnvStorePath names the environment variable holding the store directory.
const EnvStorePath = "TRAPMAIL_STORE"

// ResolveDir returns the store directory: EnvStorePath when set and non-empty, otherwise the
// platform temporary directory. The environment is read on every call.
func ResolveDir() string {
	return ResolveDirOr("")
}

// ResolveDirOr is ResolveDir with a configured fallback tried before the temporary directory.
func ResolveDirOr(fallback string) string {
	if dir := os.Getenv(EnvStorePath); dir != "" {
		return dir
	}
	if fallback != "" {
		return fallback
	}
	return os.TempDir()
}

// DirResolver returns an Allocator.Dir function that resolves against fallback on each call.
func DirResolver(fallback string) func() string {
	return func() string {
		return ResolveDirOr(fallback)
	}
}
