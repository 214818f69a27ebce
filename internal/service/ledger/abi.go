package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// crowdFundingABI is the interface of the deployed CrowdFunding contract.
const crowdFundingABI = `[
 {"type":"function","name":"createCampaign","stateMutability":"nonpayable",
  "inputs":[{"name":"_owner","type":"address"},{"name":"_title","type":"string"},{"name":"_description","type":"string"},
            {"name":"_target","type":"uint256"},{"name":"_deadline","type":"uint256"},{"name":"_image","type":"string"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"donateToCampaign","stateMutability":"payable",
  "inputs":[{"name":"_id","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"getDonators","stateMutability":"view",
  "inputs":[{"name":"_id","type":"uint256"}],
  "outputs":[{"name":"","type":"address[]"},{"name":"","type":"uint256[]"}]},
 {"type":"function","name":"numberofCampaigns","stateMutability":"view",
  "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"campaigns","stateMutability":"view",
  "inputs":[{"name":"","type":"uint256"}],
  "outputs":[{"name":"owner","type":"address"},{"name":"title","type":"string"},{"name":"description","type":"string"},
             {"name":"target","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"amountCollected","type":"uint256"},
             {"name":"image","type":"string"},{"name":"claimed","type":"bool"}]},
 {"type":"function","name":"claimFunds","stateMutability":"nonpayable",
  "inputs":[{"name":"_id","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"refundDonors","stateMutability":"nonpayable",
  "inputs":[{"name":"_id","type":"uint256"}],"outputs":[]}
]`

var contractABI = mustParseABI(crowdFundingABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("ledger: invalid contract abi: " + err.Error())
	}
	return parsed
}
