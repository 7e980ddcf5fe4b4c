package registry

// ABI fragments for the contracts the marketplace commands call.
const (
	SeaportABI = `[
		{"name":"fulfillBasicOrder","type":"function","stateMutability":"payable","inputs":[{"name":"parameters","type":"tuple","components":[
			{"name":"considerationToken","type":"address"},
			{"name":"considerationIdentifier","type":"uint256"},
			{"name":"considerationAmount","type":"uint256"},
			{"name":"offerer","type":"address"},
			{"name":"zone","type":"address"},
			{"name":"offerToken","type":"address"},
			{"name":"offerIdentifier","type":"uint256"},
			{"name":"offerAmount","type":"uint256"},
			{"name":"basicOrderType","type":"uint8"},
			{"name":"startTime","type":"uint256"},
			{"name":"endTime","type":"uint256"},
			{"name":"zoneHash","type":"bytes32"},
			{"name":"salt","type":"uint256"},
			{"name":"offererConduitKey","type":"bytes32"},
			{"name":"fulfillerConduitKey","type":"bytes32"},
			{"name":"totalOriginalAdditionalRecipients","type":"uint256"},
			{"name":"additionalRecipients","type":"tuple[]","components":[{"name":"amount","type":"uint256"},{"name":"recipient","type":"address"}]},
			{"name":"signature","type":"bytes"}
		]}],"outputs":[{"name":"fulfilled","type":"bool"}]},
		{"name":"getCounter","type":"function","stateMutability":"view","inputs":[{"name":"offerer","type":"address"}],"outputs":[{"name":"counter","type":"uint256"}]}
	]`

	ERC721ApprovalABI = `[
		{"name":"isApprovedForAll","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"setApprovalForAll","type":"function","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]}
	]`

	ERC20MinimalABI = `[
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`
)
