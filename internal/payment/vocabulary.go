package payment

// statusMessages describes the gateway's payment status values.
var statusMessages = map[string]string{
	"unknown":      "Unknown status.",
	"pending":      "The payer has not finished the payment process yet (for example, a generated boleto).",
	"approved":     "The payment was approved and accredited.",
	"authorized":   "The payment was authorized but not captured yet.",
	"in_process":   "The payment is under review.",
	"in_mediation": "The payer started a dispute.",
	"rejected":     "The payment was rejected (the payer may retry).",
	"cancelled":    "The payment was cancelled by one of the parties or the payment window expired.",
	"refunded":     "The payment was refunded to the payer.",
	"charged_back": "A chargeback was applied to the payer's card.",
}

// statusDetailMessages describes the gateway's status_detail values.
var statusDetailMessages = map[string]string{
	"unknown":                              "Unknown status.",
	"accredited":                           "Payment accredited.",
	"partially_refunded":                   "The payment has at least one partial refund.",
	"pending_capture":                      "The payment was authorized and awaits capture.",
	"offline_process":                      "Online processing is unavailable; the payment is being processed offline.",
	"pending_contingency":                  "Temporary failure. The payment will be processed later.",
	"pending_review_manual":                "The payment is under manual review.",
	"pending_waiting_transfer":             "Waiting for the payer to finish the transfer at their bank.",
	"pending_waiting_payment":              "Pending until the payer pays.",
	"pending_challenge":                    "Credit card payment awaiting challenge confirmation.",
	"bank_error":                           "Rejected because of a bank error.",
	"cc_rejected_3ds_mandatory":            "Rejected because the mandatory 3DS challenge was not performed.",
	"cc_rejected_bad_filled_card_number":   "Wrong card number.",
	"cc_rejected_bad_filled_date":          "Wrong expiration date.",
	"cc_rejected_bad_filled_other":         "Wrong card details.",
	"cc_rejected_bad_filled_security_code": "Wrong security code (CVV).",
	"cc_rejected_blacklist":                "The card is disabled or on a restriction list.",
	"cc_rejected_call_for_authorize":       "The payment method requires prior authorization for this amount.",
	"cc_rejected_card_disabled":            "The card is inactive.",
	"cc_rejected_duplicated_payment":       "Duplicated payment.",
	"cc_rejected_high_risk":                "Refused by fraud prevention.",
	"cc_rejected_insufficient_amount":      "Insufficient card limit.",
	"cc_rejected_invalid_installments":     "Invalid number of installments.",
	"cc_rejected_max_attempts":             "Maximum number of attempts exceeded.",
	"cc_rejected_other_reason":             "Generic payment processor error.",
	"cc_rejected_time_out":                 "The transaction timed out.",
	"cc_amount_rate_limit_exceeded":        "Amount limit for the payment method exceeded.",
	"rejected_high_risk":                   "Rejected on suspicion of fraud.",
	"rejected_insufficient_data":           "Rejected for missing required information.",
	"rejected_by_bank":                     "Refused by the bank.",
	"rejected_by_regulations":              "Refused due to regulations.",
	"rejected_by_biz_rule":                 "Refused due to business rules.",
}

func DescribeStatus(status string) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return "Unknown error."
}

func DescribeStatusDetail(detail string) string {
	if msg, ok := statusDetailMessages[detail]; ok {
		return msg
	}
	return "Unknown detail."
}
