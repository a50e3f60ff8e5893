package collect

import (
	"context"
	"fmt"

	"github.com/susgrid/poweff-collector/pkg/models"
	"github.com/susgrid/poweff-collector/pkg/secrets"
	"github.com/susgrid/poweff-collector/pkg/util"
)

// SSHRunner is the production CommandRunner: it resolves the device's
// credential reference and opens an interactive SSH session.
type SSHRunner struct {
	resolver secrets.Resolver
}

// NewSSHRunner builds the SSH transport over the given secret resolver.
func NewSSHRunner(resolver secrets.Resolver) *SSHRunner {
	return &SSHRunner{resolver: resolver}
}

var _ CommandRunner = (*SSHRunner)(nil)

// Open resolves credentials and connects. A credential reference that
// cannot be resolved is a configuration problem, not a device problem, so
// it is permanent.
func (r *SSHRunner) Open(ctx context.Context, device models.Device) (Session, error) {
	password, err := r.resolver.Resolve(device.Connection.CredentialRef)
	if err != nil {
		return nil, Permanent(fmt.Errorf("resolving credentials for %s: %w", device.Name, err))
	}

	client := util.NewSSHClient(device, password)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}
