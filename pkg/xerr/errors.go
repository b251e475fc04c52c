package xerr

import "fmt"

// Business error codes surfaced at the Intake HTTP boundary (spec §7).
const (
	OK                 = 200
	RequestParamsError = 400
	NotFound           = 404
	ServerCommonError  = 500
	NotConfigured      = 503
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

func MapErrMsg(code int) string {
	switch code {
	case RequestParamsError:
		return "invalid request"
	case NotFound:
		return "not found"
	case NotConfigured:
		return "service not configured"
	case ServerCommonError:
		return "internal error"
	default:
		return "unknown error"
	}
}
