package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// UserDetails mirrors the registry contract's getUserDetails tuple.
type UserDetails struct {
	Username  string
	Address   common.Address
	Role      Role
	LastLogin time.Time // zero when the user has never logged in
	Message   string    // last status message recorded by the contract
}

// Registered reports whether the address has ever registered. The contract
// returns an empty username for unknown addresses.
func (d UserDetails) Registered() bool { return d.Username != "" }
