package token

import "strconv"

const (
	EventTypeInitialized = "token.initialized"
	EventTypeMinted      = "token.minted"
	EventTypeApproved    = "token.approved"
	EventTypeTransferred = "token.transferred"
	EventTypeBurned      = "token.burned"
)

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }
