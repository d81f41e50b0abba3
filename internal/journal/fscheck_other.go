//go:build !darwin && !linux

package journal

func detectFilesystemType(string) (string, error) {
	return "", errUnsupportedPlatform
}
