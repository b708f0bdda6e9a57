package models

import "errors"

var ErrEmptyReceipt = errors.New("models: receipt data is empty")
