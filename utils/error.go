package utils

import "errors"

var (
	ErrorRecordNotFound  = errors.New("record not found")
	ErrorSupplierUnknown = errors.New("supplier not found or inactive")
)
