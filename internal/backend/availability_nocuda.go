//go:build !cuda

package backend

// Has reports whether this build can place work on the named device.
func Has(name string) bool {
	return name == CPU
}
