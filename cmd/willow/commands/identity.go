package commands

import (
	"github.com/meadowlark-sync/willow/pkg/area"
	"github.com/meadowlark-sync/willow/pkg/config"
	"github.com/meadowlark-sync/willow/pkg/meadowcap"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
	"github.com/meadowlark-sync/willow/pkg/session"
	"github.com/meadowlark-sync/willow/pkg/wire"
)

// identityMaterial is the signing material one side of a session presents:
// its own user key, plus an owned capability (signed by the shared
// namespace key) granting that user key write access to the whole
// namespace. Both `serve` and `sync` build the same shape of Setup from it.
type identityMaterial struct {
	secretKey  meadowkey.UserSecretKey
	capability meadowcap.Capability
}

// loadIdentity loads (or generates) the local user key and namespace key
// from the paths configured under [identity], and mints an owned write
// capability for the user key. Every willow instance participating in the
// same namespace must share the namespace secret key so their
// independently-minted capabilities validate against each other.
func loadIdentity(cfg *config.Config) (identityMaterial, error) {
	userKey, err := meadowkey.LoadOrGenerateUserSecretKey(cfg.Identity.KeyPath)
	if err != nil {
		return identityMaterial{}, err
	}
	namespaceKey, err := meadowkey.LoadOrGenerateNamespaceSecretKey(cfg.Identity.NamespaceKeyPath)
	if err != nil {
		return identityMaterial{}, err
	}

	capability := meadowcap.NewOwnedCapability(namespaceKey, userKey.Public, meadowcap.AccessWrite)
	return identityMaterial{secretKey: userKey, capability: capability}, nil
}

// buildSetup builds the session.Setup both serve and sync present: our
// capability, bound to an area of interest covering the entire namespace.
func buildSetup(identity identityMaterial) session.Setup {
	return session.Setup{
		SecretKey:    identity.secretKey,
		Capabilities: []meadowcap.Capability{identity.capability},
		AreasOfInterest: []session.SetupAreaOfInterest{
			{
				AreaOfInterest: wire.AreaOfInterest{Area: area.Full()},
				Capability:     0,
			},
		},
	}
}
