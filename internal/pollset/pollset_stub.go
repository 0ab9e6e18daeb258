//go:build !linux && !darwin

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package pollset

import (
	"errors"

	"github.com/momentics/proactor/api"
)

// New returns an error on platforms without an epoll/kqueue implementation,
// mirroring reactor/reactor_stub.go in the source repository.
func New() (api.PollSet, error) {
	return nil, errors.New("pollset: this platform is not supported")
}
