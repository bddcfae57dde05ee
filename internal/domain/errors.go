package domain

import "fmt"

var (
	ErrMerchantNotFound = fmt.Errorf("merchant not found")
	ErrDuplicateTxHash  = fmt.Errorf("transaction hash already recorded")
	ErrUnknownRecipient = fmt.Errorf("payment to unrecognized address")
	ErrKeyDecryptFailed = fmt.Errorf("can't decrypt address key")
	ErrQueueUnavailable = fmt.Errorf("work queue unavailable")
)
