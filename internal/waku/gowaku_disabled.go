//go:build !real_waku

package waku

// Builds without the real_waku tag ship only the mock transport.
func newGoWakuBackend() goWakuBackend {
	return nil
}
