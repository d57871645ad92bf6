//go:build !linux

package device

func setThreadNice(nice int) error {
	return nil
}
