//go:build !linux

package firewall

// New always fails off Linux. Rule generation and artifact rendering still
// work; only live application needs a kernel packet filter.
func New(kind string, opts Options) (Backend, error) {
	return nil, ErrUnsupported
}
