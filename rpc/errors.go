package rpc

import (
	"net/http"

	nativecommon "deficore/native/common"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codePrecondition   = -32010
	codeEconomic       = -32020
	codeRateLimited    = -32029
)

// errorCode maps an engine failure onto its JSON-RPC code.
func errorCode(err error) int {
	switch nativecommon.KindOf(err) {
	case nativecommon.KindAuthorization:
		return codeUnauthorized
	case nativecommon.KindValidation:
		return codeInvalidParams
	case nativecommon.KindPrecondition:
		return codePrecondition
	case nativecommon.KindEconomic:
		return codeEconomic
	default:
		return codeServerError
	}
}

func errorStatus(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeServerError:
		return http.StatusInternalServerError
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeParseError, codeInvalidRequest, codeInvalidParams:
		return http.StatusBadRequest
	default:
		// Business rejections are well-formed calls.
		return http.StatusOK
	}
}

var (
	errCallerRequired = nativecommon.NewError(nativecommon.KindAuthorization, "rpc: authenticated caller required")
	errDevModeOnly    = nativecommon.NewError(nativecommon.KindAuthorization, "rpc: method only available in dev mode")
	errEventLogOff    = nativecommon.NewError(nativecommon.KindPrecondition, "rpc: event log disabled")
)

func invalidParams(msg string) error {
	return nativecommon.NewError(nativecommon.KindValidation, "rpc: "+msg)
}
