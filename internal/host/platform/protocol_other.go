//go:build !linux && !windows && !darwin

package platform

func RegisterProtocolClient(string, string, string) error {
	return ErrUnsupported
}
