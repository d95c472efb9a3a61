// Package registry allocates registry numbers for found-item forms.
//
// A registry number has the form RZ + YY + OFFICE_CODE + SEQ, with SEQ zero
// padded to four digits, for example RZ2504030007 for the seventh form of
// office "0403" in 2025. SEQ comes from a counter kept per office and calendar
// year. The counter is read, created and incremented inside the caller's
// transaction, so a number is only consumed when the form that carries it
// commits.
package registry
