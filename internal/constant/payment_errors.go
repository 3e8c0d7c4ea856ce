package constant

// System-level codes (1xxx)
const (
	CodeSuccess         = 0
	CodeSystemError     = 1000
	CodeMissingParams   = 1001
	CodeParamsTypeError = 1002
)

// Order-related codes (21xx)
const (
	CodeOrderNotFound          = 2100 // order missing or not owned by tenant
	CodeDuplicatePaymentIntent = 2101 // a non-terminal payment already exists for the order
	CodeOrderAmountInvalid     = 2103 // order total must be positive
	CodeOrderAlreadyPaid       = 2105
)

// Payment-related codes (23xx)
const (
	CodePaymentNotFound    = 2300
	CodePaymentAmountError = 2303 // webhook amount outside tolerance of the recorded amount
)

// Webhook-related codes (27xx)
const (
	CodeWebhookSignInvalid = 2702 // signature verification failed, never retried
	CodeWebhookMalformed   = 2703 // required correlation fields missing
)

var ErrorMessages = map[int]string{
	CodeSuccess:         "success",
	CodeSystemError:     "internal error",
	CodeMissingParams:   "missing required parameters",
	CodeParamsTypeError: "parameter type error",

	CodeOrderNotFound:          "order not found",
	CodeDuplicatePaymentIntent: "an active payment already exists for this order",
	CodeOrderAmountInvalid:     "order amount must be positive",
	CodeOrderAlreadyPaid:       "order already paid",

	CodePaymentNotFound:    "payment not found",
	CodePaymentAmountError: "webhook amount does not match payment amount",

	CodeWebhookSignInvalid: "webhook signature verification failed",
	CodeWebhookMalformed:   "webhook payload missing required fields",
}
