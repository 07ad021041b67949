package ports

import "github.com/layer-3/faucetadmin/core"

// TokenInspector reads metadata out of an access credential. The client has no
// verification key, so nothing returned here is trusted for authorization.
type TokenInspector interface {
	Inspect(accessToken string) (core.TokenInfo, error)
}
