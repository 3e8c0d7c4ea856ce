package utils

import "qrpay-intent-api/internal/constant"

// Response is the API envelope.
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func Success(data interface{}) Response {
	return Response{
		Code: constant.CodeSuccess,
		Msg:  "success",
		Data: data,
	}
}

// Error builds a response from the registered code table.
func Error(code int) Response {
	if msg, exists := constant.GetErrorMessage(code); exists {
		return Response{Code: code, Msg: msg}
	}
	return Response{Code: code, Msg: "unknown error"}
}

func CustomError(code int, message string) Response {
	return Response{Code: code, Msg: message}
}
