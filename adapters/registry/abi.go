package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// authABI is the deployed Auth contract's interface.
const authABI = `[
  {"type":"function","name":"getUserDetails","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[
     {"name":"username","type":"string"},
     {"name":"addr","type":"address"},
     {"name":"role","type":"uint8"},
     {"name":"lastLogin","type":"uint256"},
     {"name":"message","type":"string"}]},
  {"type":"function","name":"registerUser","stateMutability":"nonpayable",
   "inputs":[{"name":"username","type":"string"}],"outputs":[]},
  {"type":"function","name":"attemptLogin","stateMutability":"nonpayable",
   "inputs":[
     {"name":"message","type":"string"},
     {"name":"signature","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"updateUsername","stateMutability":"nonpayable",
   "inputs":[{"name":"newUsername","type":"string"}],"outputs":[]},
  {"type":"function","name":"changeUserRole","stateMutability":"nonpayable",
   "inputs":[
     {"name":"user","type":"address"},
     {"name":"newRole","type":"uint8"}],"outputs":[]},
  {"type":"function","name":"deleteUser","stateMutability":"nonpayable",
   "inputs":[{"name":"user","type":"address"}],"outputs":[]},
  {"type":"event","name":"LoginAttempt","anonymous":false,
   "inputs":[
     {"name":"user","type":"address","indexed":true},
     {"name":"success","type":"bool","indexed":false},
     {"name":"message","type":"string","indexed":false},
     {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"UserRegistered","anonymous":false,
   "inputs":[
     {"name":"user","type":"address","indexed":true},
     {"name":"username","type":"string","indexed":false},
     {"name":"role","type":"uint8","indexed":false}]},
  {"type":"event","name":"RoleChanged","anonymous":false,
   "inputs":[
     {"name":"user","type":"address","indexed":true},
     {"name":"newRole","type":"uint8","indexed":false}]}
]`

func parseAuthABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(authABI))
}
